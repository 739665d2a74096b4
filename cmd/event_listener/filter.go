package main

import "strings"

// wanted reports whether eventType is listed in filter, a comma separated
// list. An empty filter accepts everything.
func wanted(filter, eventType string) bool {
	if filter == "" {
		return true
	}
	for _, t := range strings.Split(filter, ",") {
		if strings.TrimSpace(t) == eventType {
			return true
		}
	}
	return false
}
