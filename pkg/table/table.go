package table

import (
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/bacalhau-project/fridge/pkg/storage"
)

const (
	ResponseWidth = 60
	VersionWidth  = 36
)

// ResultTable renders operation results for the CLI.
type ResultTable struct {
	table *tablewriter.Table
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	if w == nil {
		w = os.Stdout
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	table.SetNoWhiteSpace(true)
	return table
}

func NewResultTable(w io.Writer) *ResultTable {
	return &ResultTable{table: newTable(w, []string{"Target", "Status", "Response", "Version"})}
}

// AddResult appends a row for target. A nil result with an error records the relayed
// status and message of the error.
func (rt *ResultTable) AddResult(target string, res *storage.Result, err error) {
	status, response, version := 0, "", ""
	switch {
	case err != nil:
		status, response = storage.StatusOf(err)
	case res != nil:
		status, response, version = res.Status, res.Response, res.Version
	}
	rt.table.Append([]string{
		target,
		strconv.Itoa(status),
		truncate(response, ResponseWidth),
		truncate(version, VersionWidth),
	})
}

func (rt *ResultTable) Render() {
	rt.table.Render()
}

// KeyValueTable renders two-column diagnostics.
type KeyValueTable struct {
	table *tablewriter.Table
}

func NewKeyValueTable(w io.Writer) *KeyValueTable {
	return &KeyValueTable{table: newTable(w, []string{"Field", "Value"})}
}

func (kv *KeyValueTable) Add(field, value string) {
	kv.table.Append([]string{field, value})
}

func (kv *KeyValueTable) Render() {
	kv.table.Render()
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
