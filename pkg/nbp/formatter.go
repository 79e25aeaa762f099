// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nbp

import (
	"fmt"
	"strings"
)

// FormatPacket formats a packet into a human-readable string
func FormatPacket(p *Packet) string {
	timestamp := p.timestamp.Format("15:04:05.000")

	if p.IsControl() {
		result := fmt.Sprintf("[%s] CONTROL device=%s\n", timestamp, p.device)
		for _, d := range p.directives {
			result += fmt.Sprintf("  %s\n", d)
		}
		return result
	}

	result := fmt.Sprintf("[%s] %s t=%.3fs channels=%d", timestamp, p.kind, p.elapsed.Seconds(), len(p.readings))
	if p.IsFull() {
		result += fmt.Sprintf(" device=%s", p.device)
	}
	result += "\n"

	width := 0
	for _, r := range p.readings {
		if len(r.Name) > width {
			width = len(r.Name)
		}
	}
	for _, r := range p.readings {
		result += "  " + FormatReading(r, width) + "\n"
	}

	return result
}

// FormatReading renders one channel reading, padding the name to width
func FormatReading(r Reading, width int) string {
	line := fmt.Sprintf("%-*s %s", width+1, r.Name+":", r.Value)
	if r.Unit != "" {
		line += " " + r.Unit
	}
	return strings.TrimRight(line, " ")
}
