package queue

import (
	"testing"
)

func TestNamespaceKey(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		expected string
	}{
		{
			name:     "pending list",
			key:      "resolve:pending",
			expected: "siteindex:resolve:pending",
		},
		{
			name:     "processing list",
			key:      "resolve:processing",
			expected: "siteindex:resolve:processing",
		},
		{
			name:     "empty key",
			key:      "",
			expected: "siteindex:",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := namespaceKey(tt.key)
			if result != tt.expected {
				t.Errorf("namespaceKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}
