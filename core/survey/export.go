package survey

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/trezcool/ustawi/core/user"
)

const (
	exportSheetName = "Survey Results"

	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypeCSV  = "text/csv"
)

// Export renders survey submissions into a downloadable document.
// Each submission becomes one row: the selected answer columns (or the full
// payload when none are selected), followed by stratum fields read from the
// submitting participant's record. Missing values render as "".
func Export(s Survey, subs []SubmissionWithOwner, users []user.User, params ExportParams) (ExportFile, error) {
	usersByID := make(map[string]user.User, len(users))
	for _, u := range users {
		usersByID[u.ID] = u
	}

	header, rows := buildRows(subs, usersByID, params)

	var (
		data []byte
		err  error
		ext  string
		ct   string
	)
	switch params.Format {
	case FormatCSV:
		data, err = renderCSV(header, rows)
		ext, ct = FormatCSV, contentTypeCSV
	default:
		data, err = renderXLSX(header, rows)
		ext, ct = FormatXLSX, contentTypeXLSX
	}
	if err != nil {
		return ExportFile{}, err
	}

	return ExportFile{
		Filename:    fmt.Sprintf("%s_results.%s", s.Name, ext),
		ContentType: ct,
		Data:        data,
	}, nil
}

// buildRows projects submissions into header + cell rows. When columns are
// requested explicitly the header is columns then strata, in request order;
// otherwise answer keys appear in first-seen order across submissions,
// sorted within each submission, with strata appended last.
func buildRows(subs []SubmissionWithOwner, usersByID map[string]user.User, params ExportParams) ([]string, [][]string) {
	explicit := len(params.Columns) > 0

	var header []string
	seen := make(map[string]bool)
	addKey := func(key string) {
		if !seen[key] {
			seen[key] = true
			header = append(header, key)
		}
	}

	if explicit {
		for _, col := range params.Columns {
			addKey(col)
		}
	}

	strata := make(map[string]bool, len(params.Strata))
	for _, stratum := range params.Strata {
		strata[stratum] = true
	}

	cells := make([]map[string]string, 0, len(subs))
	for _, sub := range subs {
		payload := decodePayload(sub.Data.JSON)
		row := make(map[string]string, len(payload)+len(params.Strata))

		// sorted so exports of the same data always come out identical
		keys := make([]string, 0, len(payload))
		for q := range payload {
			keys = append(keys, q)
		}
		sort.Strings(keys)

		for _, q := range keys {
			if explicit && !seen[q] {
				continue
			}
			if strata[q] {
				continue // stratum fields come from the user record
			}
			if !explicit {
				addKey(q)
			}
			row[q] = stringifyCell(payload[q])
		}

		usr := usersByID[sub.UserID]
		for _, stratum := range params.Strata {
			row[stratum] = stratumValue(usr, stratum)
		}
		cells = append(cells, row)
	}
	for _, stratum := range params.Strata {
		addKey(stratum)
	}

	rows := make([][]string, 0, len(cells))
	for _, row := range cells {
		rec := make([]string, 0, len(header))
		for _, key := range header {
			rec = append(rec, row[key]) // "" when absent
		}
		rows = append(rows, rec)
	}
	return header, rows
}

// stratumValue reads a stratum field off the participant's record;
// unknown fields render as "".
func stratumValue(usr user.User, field string) string {
	switch field {
	case "name":
		return usr.Name
	case "email":
		return usr.Email
	case "role":
		return string(usr.Role)
	case "contact_number":
		return usr.ContactNumber
	case "supervisor_id":
		return usr.SupervisorID.String
	default:
		return ""
	}
}

// stringifyCell renders any JSON answer value for a spreadsheet cell.
func stringifyCell(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func renderCSV(header []string, rows [][]string) ([]byte, error) {
	buf := new(bytes.Buffer)
	w := csv.NewWriter(buf)
	if len(header) > 0 {
		if err := w.Write(header); err != nil {
			return nil, errors.Wrap(err, "writing csv header")
		}
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, errors.Wrap(err, "writing csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "flushing csv")
	}
	return buf.Bytes(), nil
}

func renderXLSX(header []string, rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(exportSheetName)
	if err != nil {
		return nil, errors.Wrap(err, "creating sheet")
	}
	f.SetActiveSheet(index)
	if err = f.DeleteSheet("Sheet1"); err != nil {
		return nil, errors.Wrap(err, "dropping default sheet")
	}

	writeRow := func(rowNum int, cells []string) error {
		for col, val := range cells {
			cell, err := excelize.CoordinatesToCellName(col+1, rowNum)
			if err != nil {
				return err
			}
			if err = f.SetCellValue(exportSheetName, cell, val); err != nil {
				return err
			}
		}
		return nil
	}

	if err = writeRow(1, header); err != nil {
		return nil, errors.Wrap(err, "writing xlsx header")
	}
	for i, row := range rows {
		if err = writeRow(i+2, row); err != nil {
			return nil, errors.Wrap(err, "writing xlsx row")
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "serializing xlsx")
	}
	return buf.Bytes(), nil
}
