package loader

import (
	"bytes"
	"encoding/csv"
	"mime"
	"path"
	"strings"

	excelize "github.com/360EntSecGroup-Skylar/excelize/v2"
	"github.com/anrid/xls"
	"github.com/m-mizutani/goerr/v2"
)

// Format names accepted by the source.format setting.
const (
	FormatAuto = "auto"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatXLS  = "xls"
)

// formatFromName picks a format from a file name or URL path extension.
// Unknown extensions fall back to CSV.
func formatFromName(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".xls":
		return FormatXLS
	default:
		return FormatCSV
	}
}

// formatFromContentType maps an HTTP Content-Type to a format, or "" when the
// type says nothing useful (text/plain, octet-stream).
func formatFromContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	switch mt {
	case "text/csv", "application/csv":
		return FormatCSV
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return FormatXLSX
	case "application/vnd.ms-excel":
		return FormatXLS
	default:
		return ""
	}
}

// decode turns raw bytes of the given format into string rows.
func decode(format string, data []byte, sheet string) ([][]string, error) {
	switch format {
	case FormatCSV:
		return decodeCSV(data)
	case FormatXLSX:
		return decodeXLSX(data, sheet)
	case FormatXLS:
		return decodeXLS(data, sheet)
	default:
		return nil, goerr.Wrap(ErrUnsupportedFormat, "decode", goerr.V("format", format))
	}
}

func decodeCSV(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, goerr.Wrap(err, "read csv")
	}
	return rows, nil
}

func decodeXLSX(data []byte, sheet string) ([][]string, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, goerr.Wrap(err, "open xlsx")
	}

	if sheet == "" {
		list := wb.GetSheetList()
		if len(list) == 0 {
			return nil, goerr.Wrap(ErrNoData, "xlsx has no sheets")
		}
		sheet = list[0]
	}

	rows, err := wb.GetRows(sheet)
	if err != nil {
		return nil, goerr.Wrap(err, "read xlsx rows", goerr.V("sheet", sheet))
	}
	return rows, nil
}

func decodeXLS(data []byte, sheet string) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, goerr.Wrap(err, "open xls")
	}

	var ws *xls.WorkSheet
	if sheet == "" {
		ws = wb.GetSheet(0)
	} else {
		for i := 0; i < wb.NumSheets(); i++ {
			if s := wb.GetSheet(i); s != nil && s.Name == sheet {
				ws = s
				break
			}
		}
	}
	if ws == nil {
		return nil, goerr.Wrap(ErrNoData, "xls sheet not found", goerr.V("sheet", sheet))
	}

	rows := make([][]string, 0, int(ws.MaxRow)+1)
	for i := 0; i <= int(ws.MaxRow); i++ {
		row := ws.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cols := make([]string, 0, row.LastCol()+1)
		for j := 0; j <= row.LastCol(); j++ {
			cols = append(cols, row.Col(j))
		}
		rows = append(rows, cols)
	}
	return rows, nil
}
