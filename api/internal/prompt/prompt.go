package prompt

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Extract is the instruction sent next to the image.
const Extract = `Extract all medications from this medication list image. For each medication, provide:

1. medication_name: The full medication name including strength and form (e.g., "Lisinopril 10 MG Oral Tablet")
2. frequency: How often taken (e.g., "daily", "twice daily", "4 times daily", "every 8 hours", "at bedtime")
3. instructions: The full SIG/directions (e.g., "Take 1 tablet by mouth daily")
4. is_prn: true if it's "as needed" or PRN, false otherwise
5. indication: The diagnosis or reason if listed, otherwise empty string

Return ONLY valid JSON in this exact format, no other text:
{
  "medications": [
    {
      "medication_name": "...",
      "frequency": "...",
      "instructions": "...",
      "is_prn": true/false,
      "indication": "..."
    }
  ]
}`

// Load returns the prompt stored at path, or Extract when path is empty.
func Load(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Extract, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrapf(err, "read prompt %s", path)
	}
	p := strings.TrimSpace(string(b))
	if p == "" {
		return "", errors.Errorf("prompt %s is empty", path)
	}
	return p, nil
}
