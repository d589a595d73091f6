package kernel

import (
	"fmt"
	"strings"
)

var escaper = strings.NewReplacer("%", "%25", ";", "%3B", "=", "%3D")

// NetworkConfig builds the in-process identity of a compiled kernel variant. Every entry
// is a key=value pair and values are escaped, so two different parameter lists can
// never render to the same string.
type NetworkConfig struct {
	parts []string
}

// NewNetworkConfig starts a config for one operation kind, e.g. "optensor".
func NewNetworkConfig(kind string) *NetworkConfig {
	return &NetworkConfig{parts: []string{escaper.Replace(kind)}}
}

// Add appends key=value.
func (n *NetworkConfig) Add(key string, value any) *NetworkConfig {
	n.parts = append(n.parts, escaper.Replace(key)+"="+escaper.Replace(fmt.Sprint(value)))
	return n
}

// Ints appends key=v0xv1x...
func (n *NetworkConfig) Ints(key string, values []int) *NetworkConfig {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = fmt.Sprint(v)
	}
	return n.Add(key, strings.Join(s, "x"))
}

func (n *NetworkConfig) String() string {
	return strings.Join(n.parts, ";")
}
