// Package v1 contains the entity types of the example operators shipped with
// operatorkit.
//
// Entities are plain projections of the watched resources. They are decoded
// from the spec of a custom resource or from the "config" document of a
// ConfigMap, so every field carries json tags (used by both decoders) and yaml
// tags for documentation output.
//
// # API Group: operatorkit.io/v1
//
// ## Cluster
//
// Cluster is served as a custom resource:
//
//	apiVersion: operatorkit.io/v1
//	kind: Cluster
//	metadata:
//	  name: analytics
//	  namespace: team-a
//	spec:
//	  workers: 3
//	  image: quay.io/example/worker:1.4
//
// ## Greeting
//
// Greeting is carried by a labelled ConfigMap:
//
//	apiVersion: v1
//	kind: ConfigMap
//	metadata:
//	  name: hello
//	  labels:
//	    operatorkit.io/kind: greeting
//	data:
//	  config: |
//	    message: Hello
//	    recipients: [alice, bob]
package v1
