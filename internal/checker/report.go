package checker

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

type xmlReport struct {
	XMLName xml.Name  `xml:"checkstyle"`
	Version string    `xml:"version,attr"`
	Files   []xmlFile `xml:"file"`
}

type xmlFile struct {
	Name   string     `xml:"name,attr"`
	Errors []xmlError `xml:"error"`
}

type xmlError struct {
	Line     string `xml:"line,attr"`
	Column   string `xml:"column,attr"`
	Severity string `xml:"severity,attr"`
	Message  string `xml:"message,attr"`
	Source   string `xml:"source,attr"`
}

// extractReport returns the XML report embedded in output, which may be
// surrounded by log lines such as "Starting audit..." or warnings from the JVM.
func extractReport(output []byte) ([]byte, bool) {
	start := bytes.Index(output, []byte("<?xml"))
	if start < 0 {
		start = bytes.Index(output, []byte("<checkstyle"))
	}
	if start < 0 {
		return nil, false
	}
	end := bytes.LastIndex(output, []byte("</checkstyle>"))
	if end < start {
		return nil, false
	}
	return output[start : end+len("</checkstyle>")], true
}

// parseReport decodes a Checkstyle XML report.
func parseReport(data []byte) (Result, error) {
	var report xmlReport
	if err := xml.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse checkstyle report: %w", err)
	}

	result := make(Result, len(report.Files))
	for _, f := range report.Files {
		name := filepath.Clean(f.Name)
		violations := result[name]
		if violations == nil {
			violations = []Violation{}
		}
		for _, e := range f.Errors {
			violations = append(violations, Violation{
				Line:     atoi(e.Line),
				Column:   atoi(e.Column),
				Message:  e.Message,
				Severity: ParseSeverity(e.Severity),
				RuleID:   ruleID(e.Source),
			})
		}
		result[name] = violations
	}
	return result, nil
}

// ruleID shortens a check class name to its simple name.
func ruleID(source string) string {
	if i := strings.LastIndexByte(source, '.'); i >= 0 {
		return source[i+1:]
	}
	return source
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
