package output

import (
	"encoding/json"
	"fmt"

	"github.com/luckyPipewrench/mcpscan/internal/finding"
)

// jsonRenderer emits the full scan result as indented JSON.
type jsonRenderer struct{}

func (jsonRenderer) Render(result *finding.ScanResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal result: %w", err)
	}
	return string(data) + "\n", nil
}
