package export

import "fmt"

// Column describes one field of an export. Width is a PDF hint in millimetres; zero shares the
// remaining page width evenly.
type Column struct {
	Key   string
	Label string
	Width float64
}

// Dataset is the tabular content handed to a renderer.
type Dataset struct {
	Title    string
	Subtitle string
	Columns  []Column
	Rows     []map[string]string
}

func (d Dataset) validate() error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("export requires at least one column")
	}
	seen := make(map[string]struct{}, len(d.Columns))
	for _, col := range d.Columns {
		if col.Key == "" {
			return fmt.Errorf("export column without key")
		}
		if _, dup := seen[col.Key]; dup {
			return fmt.Errorf("duplicate export column %q", col.Key)
		}
		seen[col.Key] = struct{}{}
	}
	return nil
}

func (c Column) label() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Key
}
