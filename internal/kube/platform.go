package kube

import (
	"context"
	"fmt"
	"strings"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/discovery"

	"operatorkit/pkg/logging"
)

// Platform names the Kubernetes distribution.
type Platform string

const (
	Kubernetes Platform = "Kubernetes"
	OpenShift  Platform = "OpenShift"
)

// openShiftGroup is served by every OpenShift cluster and by no vanilla one.
const openShiftGroup = "route.openshift.io"

// DetectPlatform inspects the served API groups. Discovery failures fall back
// to Kubernetes; the error is returned so callers can log it.
func DetectPlatform(ctx context.Context, d discovery.DiscoveryInterface) (Platform, error) {
	type result struct {
		groups *metav1.APIGroupList
		err    error
	}

	ch := make(chan result, 1)
	go func() {
		groups, err := d.ServerGroups()
		ch <- result{groups: groups, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return Kubernetes, fmt.Errorf("platform detection aborted: %w", ctx.Err())
	case res = <-ch:
	}
	if res.err != nil {
		return Kubernetes, fmt.Errorf("failed to list API groups: %w", res.err)
	}

	for _, g := range res.groups.Groups {
		if strings.EqualFold(g.Name, openShiftGroup) {
			logging.Debug("Platform", "Found API group %s", g.Name)
			return OpenShift, nil
		}
	}
	return Kubernetes, nil
}
