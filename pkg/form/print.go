package form

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/urmzd/homai-panel/pkg/paramset"
)

// Labels are the localized texts used by Fprint.
type Labels struct {
	Modified string
	Short    string
	Long     string
	Common   string
}

// DefaultLabels are the English labels.
var DefaultLabels = Labels{
	Modified: "modified",
	Short:    "Short keypress",
	Long:     "Long keypress",
	Common:   "Common",
}

// Fprint writes the form as an aligned table, one row per control.
func Fprint(w io.Writer, f *Form, labels Labels) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, s := range f.Sections {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		title := s.Title
		if title == "" {
			title = s.ID
		}
		fmt.Fprintf(tw, "[%s]\n", title)
		for _, c := range s.Controls {
			printControl(tw, c, labels)
		}
	}
	return tw.Flush()
}

// FprintGroups writes link parameters grouped by keypress.
func FprintGroups(w io.Writer, f *Form, groups paramset.KeypressGroups, labels Labels) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	sets := []struct {
		title  string
		params []paramset.Parameter
	}{
		{labels.Short, groups.Short},
		{labels.Long, groups.Long},
		{labels.Common, groups.Common},
	}
	first := true
	for _, set := range sets {
		if len(set.params) == 0 {
			continue
		}
		if !first {
			fmt.Fprintln(tw)
		}
		first = false
		fmt.Fprintf(tw, "[%s]\n", set.title)
		for _, p := range set.params {
			if c, ok := f.Control(p.ID); ok {
				printControl(tw, c, labels)
			}
		}
	}
	return tw.Flush()
}

func printControl(w io.Writer, c *Control, labels Labels) {
	var flags []string
	if c.Modified {
		flags = append(flags, labels.Modified)
	}
	if c.Disabled {
		flags = append(flags, "read-only")
	}
	if c.Error != "" {
		flags = append(flags, "error: "+c.Error)
	}
	label := c.Parameter.Label
	if label == "" {
		label = c.Parameter.ID
	}
	display := c.Display
	if c.Parameter.Type == paramset.TypeAction {
		display = "[" + label + "]"
		if c.Modified {
			display += " (pending)"
		}
	}
	fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n", c.Parameter.ID, label, display, hint(c), strings.Join(flags, ", "))
}

// hint describes the accepted input of a control.
func hint(c *Control) string {
	p := c.Parameter
	switch c.Widget {
	case paramset.WidgetToggle:
		return "on|off"
	case paramset.WidgetDropdown, paramset.WidgetRadio:
		return strings.Join(p.Options, "|")
	case paramset.WidgetSlider, paramset.WidgetNumber:
		if p.Min != nil && p.Max != nil {
			lo, hi := *p.Min, *p.Max
			if p.Percent {
				lo, hi = lo*100, hi*100
			}
			return fmt.Sprintf("%g..%g", lo, hi)
		}
	}
	return ""
}
