package natsadapter

import "strings"

const (
	markerSubjectPrefix   = "map.markers."
	viewportSubjectPrefix = "map.viewports."
	// ClusterSubjectPrefix is followed by a view ID. Snapshots are published
	// on core NATS since only the latest one matters.
	ClusterSubjectPrefix = "map.clusters."
	// ClusterSubjectAll matches snapshots of every view.
	ClusterSubjectAll = ClusterSubjectPrefix + ">"
)

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

// Token makes s usable as a single subject token.
func Token(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(s)
}

// ClusterSubject is the subject snapshots of viewID are published on.
func ClusterSubject(viewID string) string {
	return ClusterSubjectPrefix + Token(viewID)
}

// ViewIDFromSubject returns the view token of a cluster snapshot subject.
func ViewIDFromSubject(subject string) string {
	return strings.TrimPrefix(subject, ClusterSubjectPrefix)
}
