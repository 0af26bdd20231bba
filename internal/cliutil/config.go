package cliutil

import (
	"strconv"
	"strings"
)

// ParseSettingValue converts a value given on the command line to the type
// it is stored as in the config file.
//
// Numbers and booleans are converted, and comma-separated values become
// lists. Anything else, including durations like "2s", stays a string.
func ParseSettingValue(value string) any {
	if strings.Contains(value, ",") {
		var items []string
		for item := range strings.SplitSeq(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items
	}

	if num, err := strconv.ParseInt(value, 10, 64); err == nil {
		return num
	} else if num, err := strconv.ParseFloat(value, 64); err == nil {
		return num
	} else if value == "true" {
		return true
	} else if value == "false" {
		return false
	}

	return value
}
