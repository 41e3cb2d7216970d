package v1

const (
	// GroupPrefix is the API group of the example kinds followed by the prefix separator.
	GroupPrefix = "operatorkit.io/"

	ClusterKind  = "Cluster"
	GreetingKind = "Greeting"
)

// Cluster describes a set of worker processes provisioned by the cluster operator.
type Cluster struct {
	// Name identifies the cluster within its namespace. Defaults to the resource name.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Workers is the number of worker replicas.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty"`

	// Image is the container image of the workers.
	Image string `json:"image,omitempty" yaml:"image,omitempty"`

	// Labels are copied onto the provisioned objects.
	Labels map[string]string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// GetName returns the entity name.
func (c *Cluster) GetName() string { return c.Name }

// SetName sets the entity name.
func (c *Cluster) SetName(name string) { c.Name = name }

// Greeting is a message delivered to a list of recipients.
type Greeting struct {
	Name       string   `json:"name,omitempty" yaml:"name,omitempty"`
	Message    string   `json:"message,omitempty" yaml:"message,omitempty"`
	Recipients []string `json:"recipients,omitempty" yaml:"recipients,omitempty"`
}

func (g *Greeting) GetName() string     { return g.Name }
func (g *Greeting) SetName(name string) { g.Name = name }
