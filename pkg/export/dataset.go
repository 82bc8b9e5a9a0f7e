package export

import "fmt"

// Column describes one exported field. Weight sizes the PDF column relative
// to the others; zero counts as one.
type Column struct {
	Key    string
	Title  string
	Weight float64
}

// Dataset is tabular export content keyed by Column.Key.
type Dataset struct {
	Columns []Column
	Rows    []map[string]string
}

func (d Dataset) validate() error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("dataset has no columns")
	}
	return nil
}

func (d Dataset) titles() []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = col.Title
		if out[i] == "" {
			out[i] = col.Key
		}
	}
	return out
}

func (d Dataset) record(row map[string]string) []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = row[col.Key]
	}
	return out
}
