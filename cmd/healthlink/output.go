package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/srg/healthlink/internal/codec"
	"github.com/srg/healthlink/internal/profile"
)

// Output formats accepted by --format.
const (
	formatAuto = "auto"
	formatText = "text"
	formatJSON = "json"
)

func validateFormat(f string) error {
	switch f {
	case formatAuto, formatText, formatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format '%s': must be one of [auto text json]", f)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// useJSON resolves auto: JSON lines unless w is a terminal.
func useJSON(format string, w io.Writer) bool {
	switch format {
	case formatJSON:
		return true
	case formatText:
		return false
	default:
		return !isTerminal(w)
	}
}

// measurementPrinter writes measurements from concurrent subscriptions, one per line.
type measurementPrinter struct {
	w    io.Writer
	json bool
	now  func() time.Time

	mu     sync.Mutex
	source *color.Color
	value  *color.Color
	dim    *color.Color
	warn   *color.Color
}

func newMeasurementPrinter(w io.Writer, format string) *measurementPrinter {
	p := &measurementPrinter{
		w:      w,
		json:   useJSON(format, w),
		now:    time.Now,
		source: color.New(color.FgCyan),
		value:  color.New(color.FgGreen, color.Bold),
		dim:    color.New(color.Faint),
		warn:   color.New(color.FgYellow),
	}
	if !isTerminal(w) {
		for _, c := range []*color.Color{p.source, p.value, p.dim, p.warn} {
			c.DisableColor()
		}
	}
	return p
}

type measurementLine struct {
	Time        time.Time         `json:"time"`
	Source      string            `json:"source"`
	Kind        string            `json:"kind"`
	Measurement codec.Measurement `json:"measurement"`
	Raw         string            `json:"raw"`
}

// Print writes m, tagged with the characteristic it came from.
func (p *measurementPrinter) Print(source string, m codec.Measurement) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.json {
		_ = json.NewEncoder(p.w).Encode(measurementLine{
			Time:        p.now().UTC(),
			Source:      source,
			Kind:        m.Kind().String(),
			Measurement: m,
			Raw:         codec.HexString(m.RawBytes()),
		})
		return
	}

	summary, ok := summarize(m)
	valueColor := p.value
	if !ok {
		valueColor = p.warn
	}
	fmt.Fprintf(p.w, "%s %s %s %s\n",
		p.dim.Sprint(p.now().Format("15:04:05")),
		p.source.Sprintf("%-15s", source),
		valueColor.Sprint(summary),
		p.dim.Sprintf("[%s]", codec.HexString(m.RawBytes())),
	)
}

// summarize renders the decoded values. ok is false when nothing was decoded.
func summarize(m codec.Measurement) (string, bool) {
	var parts []string
	switch v := m.(type) {
	case codec.HeartRate:
		if v.HeartRate == nil {
			return "no heart rate", false
		}
		parts = append(parts, fmt.Sprintf("HR %d bpm", *v.HeartRate))
		if v.ContactDetected {
			parts = append(parts, "contact")
		}
		if v.EnergyExpended != nil {
			parts = append(parts, fmt.Sprintf("energy %d kJ", *v.EnergyExpended))
		}
		if len(v.RRIntervals) > 0 {
			rr := make([]string, len(v.RRIntervals))
			for i, r := range v.RRIntervals {
				rr[i] = fmt.Sprintf("%.3f", r)
			}
			parts = append(parts, "RR "+strings.Join(rr, ",")+" s")
		}
	case codec.PulseOximeter:
		if v.SpO2 == nil && v.HeartRate == nil {
			return "no reading", false
		}
		if v.SpO2 != nil {
			parts = append(parts, fmt.Sprintf("SpO2 %g%%", *v.SpO2))
		}
		if v.HeartRate != nil {
			parts = append(parts, fmt.Sprintf("HR %g bpm", *v.HeartRate))
		}
	case codec.VendorCustom:
		if !v.Matched() {
			return "unrecognised frame", false
		}
		if v.SpO2 != nil {
			parts = append(parts, fmt.Sprintf("SpO2 %d%%", *v.SpO2))
		}
		if v.HeartRate != nil {
			parts = append(parts, fmt.Sprintf("HR %d bpm", *v.HeartRate))
		}
		parts = append(parts, "("+v.Layout+")")
	default:
		return m.Kind().String(), false
	}
	return strings.Join(parts, "  "), true
}

// printInventory writes the GATT layout as an indented tree or as JSON.
func printInventory(w io.Writer, inv *profile.Inventory, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(inv)
	}

	if inv.Len() == 0 {
		fmt.Fprintln(w, "No services discovered")
		return nil
	}

	svcColor := color.New(color.FgCyan, color.Bold)
	if !isTerminal(w) {
		svcColor.DisableColor()
	}
	inv.Each(func(svc *profile.ServiceEntry) {
		fmt.Fprintf(w, "%s %s\n", svcColor.Sprint(svc.UUID), svc.Name)
		if svc.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", svc.Error)
		}
		for _, c := range svc.Characteristics {
			fmt.Fprintf(w, "  %s %s [%s]", c.UUID, c.Name, strings.Join(c.Properties, ","))
			switch {
			case c.ReadError != "":
				fmt.Fprintf(w, " read error: %s", c.ReadError)
			case c.ValueHex != "":
				fmt.Fprintf(w, " = %s", c.ValueHex)
			}
			fmt.Fprintln(w)
		}
	})
	return nil
}
