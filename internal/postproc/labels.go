package postproc

import (
	"bufio"
	"os"
	"strings"
)

func LoadLabels(filename string) ([]string, error) {
	labels := []string{}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			labels = append(labels, line)
		}
	}
	return labels, scanner.Err()
}

func Label(labels []string, class int) string {
	label := "unknown"
	if class >= 0 && class < len(labels) {
		label = labels[class]
	}
	return label
}
