// Copyright 2026 The Curate Lab Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import "strings"

// MatchTopic reports whether an MQTT topic filter matches a concrete
// topic. The filter may contain "+" (exactly one level) and a trailing
// "#" (this level and all below). Topics are matched level by level on
// "/" boundaries; a concrete filter matches only itself.
func MatchTopic(filter, topic string) bool {
	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	for i, level := range filterLevels {
		if level == "#" {
			// "#" must be the last filter level; it matches the
			// remainder of the topic, including zero levels.
			return i == len(filterLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if level != "+" && level != topicLevels[i] {
			return false
		}
	}
	return len(filterLevels) == len(topicLevels)
}
