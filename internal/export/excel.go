// Package export writes rankings and pipelines as .xlsx workbooks.
package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/scoring"
)

const (
	summarySheet      = "Summary"
	rankingSheet      = "Ranking"
	participantsSheet = "Participants"
)

var thinBorder = []excelize.Border{
	{Type: "left", Color: "000000", Style: 1},
	{Type: "right", Color: "000000", Style: 1},
	{Type: "top", Color: "000000", Style: 1},
	{Type: "bottom", Color: "000000", Style: 1},
}

// Path cleans the output path and makes sure it ends in .xlsx.
func Path(p string) string {
	if !strings.HasSuffix(strings.ToLower(p), ".xlsx") {
		p += ".xlsx"
	}
	return filepath.Clean(p)
}

// Ranking writes a summary sheet and one row per ranked candidate. It
// returns the path actually written.
func Ranking(r scoring.Ranking, jobDescription, outputPath string) (string, error) {
	outputPath = Path(outputPath)
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return "", err
	}
	if _, err := f.NewSheet(rankingSheet); err != nil {
		return "", err
	}

	s, err := newStyles(f)
	if err != nil {
		return "", err
	}

	mode := "capability"
	if r.Fallback {
		mode = "fallback"
	}
	summary := [][2]any{
		{"Job description", jobDescription},
		{"Generated", time.Now().UTC().Format("2006-01-02 15:04:05")},
		{"Candidates", len(r.Results)},
		{"Max score", r.MaxScore},
		{"Mode", mode},
	}
	if r.Reason != "" {
		summary = append(summary, [2]any{"Reason", r.Reason})
	}
	if err := writeSummary(f, s, "Ranking report", summary); err != nil {
		return "", fmt.Errorf("summary sheet: %w", err)
	}

	headers := []string{"Rank", "Candidate", "City", "Availability", "Score", "Skills", "Experience", "Availability pts", "Location", "Reason"}
	if err := writeHeader(f, s, rankingSheet, headers); err != nil {
		return "", fmt.Errorf("ranking sheet: %w", err)
	}
	widths := []float64{8, 25, 16, 14, 10, 10, 12, 16, 10, 60}
	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(rankingSheet, col, col, w)
	}
	for i, res := range r.Results {
		row := i + 2
		values := []any{
			i + 1,
			res.Candidate.FullName(),
			res.Candidate.City,
			string(res.Candidate.Availability),
			round2(res.Score),
			round2(res.Breakdown.Skills),
			round2(res.Breakdown.Experience),
			round2(res.Breakdown.Availability),
			round2(res.Breakdown.Location),
			res.Reason,
		}
		if err := writeRow(f, rankingSheet, row, values); err != nil {
			return "", err
		}
		f.SetCellStyle(rankingSheet, cell(0, row), cell(len(values)-1, row), s.scoreBand(res.Score, r.MaxScore))
	}
	finishTable(f, rankingSheet, len(headers), len(r.Results))

	if err := f.SaveAs(outputPath); err != nil {
		return "", fmt.Errorf("save %s: %w", outputPath, err)
	}
	return outputPath, nil
}

// Pipeline writes the pipeline summary and its participants with their
// outreach and client decision state.
func Pipeline(d engine.PipelineDetail, outputPath string) (string, error) {
	outputPath = Path(outputPath)
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return "", err
	}
	if _, err := f.NewSheet(participantsSheet); err != nil {
		return "", err
	}

	s, err := newStyles(f)
	if err != nil {
		return "", err
	}

	summary := [][2]any{
		{"Mission", d.Mission.Title},
		{"Location", d.Mission.Location},
		{"Pipeline", d.Pipeline.ID},
		{"Status", string(d.Pipeline.Status)},
		{"Validated", d.Quota.Validated},
		{"Target", d.Quota.Target},
		{"Participants", len(d.Participants)},
		{"Generated", time.Now().UTC().Format("2006-01-02 15:04:05")},
	}
	if err := writeSummary(f, s, "Pipeline report", summary); err != nil {
		return "", fmt.Errorf("summary sheet: %w", err)
	}

	headers := []string{"Candidate", "Phone", "Outreach", "Last response", "Proposed", "Decision", "Comment", "Visibility"}
	if err := writeHeader(f, s, participantsSheet, headers); err != nil {
		return "", fmt.Errorf("participants sheet: %w", err)
	}
	widths := []float64{25, 18, 14, 30, 10, 12, 40, 12}
	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(participantsSheet, col, col, w)
	}
	for i, p := range d.Participants {
		row := i + 2
		values := []any{
			p.Candidate.FullName(),
			p.Candidate.Phone,
			string(p.OutreachStatus),
			deref(p.LastResponse),
			yesNo(p.ProposedToClient),
			decision(p.Participant),
			deref(p.ClientComment),
			string(p.Visibility),
		}
		if err := writeRow(f, participantsSheet, row, values); err != nil {
			return "", err
		}
		f.SetCellStyle(participantsSheet, cell(0, row), cell(len(values)-1, row), s.decision(p.Participant))
	}
	finishTable(f, participantsSheet, len(headers), len(d.Participants))

	if err := f.SaveAs(outputPath); err != nil {
		return "", fmt.Errorf("save %s: %w", outputPath, err)
	}
	return outputPath, nil
}

type styles struct {
	title, label, header int
	good, fair, poor     int
	plain                int
}

func newStyles(f *excelize.File) (styles, error) {
	var s styles
	var err error
	if s.title, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "left", Vertical: "center"},
	}); err != nil {
		return s, err
	}
	if s.label, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return s, err
	}
	if s.header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    thinBorder,
	}); err != nil {
		return s, err
	}
	fill := func(color string) (int, error) {
		return f.NewStyle(&excelize.Style{
			Fill:   excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Border: thinBorder,
		})
	}
	if s.good, err = fill("C6EFCE"); err != nil {
		return s, err
	}
	if s.fair, err = fill("FFEB9C"); err != nil {
		return s, err
	}
	if s.poor, err = fill("FFC7CE"); err != nil {
		return s, err
	}
	s.plain, err = f.NewStyle(&excelize.Style{Border: thinBorder})
	return s, err
}

// scoreBand colours a row by its share of the maximum score.
func (s styles) scoreBand(score float64, max int) int {
	if max <= 0 {
		return s.plain
	}
	ratio := score / float64(max)
	switch {
	case ratio >= 0.7:
		return s.good
	case ratio >= 0.4:
		return s.fair
	default:
		return s.poor
	}
}

func (s styles) decision(p domain.Participant) int {
	switch {
	case p.ClientValidated:
		return s.good
	case p.ClientRefused || p.OutreachStatus == domain.OutreachDeclined:
		return s.poor
	case p.ProposedToClient:
		return s.fair
	default:
		return s.plain
	}
}

func writeSummary(f *excelize.File, s styles, title string, rows [][2]any) error {
	f.SetColWidth(summarySheet, "A", "A", 22)
	f.SetColWidth(summarySheet, "B", "B", 60)
	if err := f.SetCellValue(summarySheet, "A1", title); err != nil {
		return err
	}
	f.SetCellStyle(summarySheet, "A1", "B1", s.title)
	if err := f.MergeCell(summarySheet, "A1", "B1"); err != nil {
		return err
	}
	for i, kv := range rows {
		row := i + 3
		if err := f.SetCellValue(summarySheet, cell(0, row), kv[0]); err != nil {
			return err
		}
		f.SetCellStyle(summarySheet, cell(0, row), cell(0, row), s.label)
		if err := f.SetCellValue(summarySheet, cell(1, row), kv[1]); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(f *excelize.File, s styles, sheet string, headers []string) error {
	for col, h := range headers {
		c := cell(col, 1)
		if err := f.SetCellValue(sheet, c, h); err != nil {
			return err
		}
		f.SetCellStyle(sheet, c, c, s.header)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	return f.SetSheetRow(sheet, cell(0, row), &values)
}

func finishTable(f *excelize.File, sheet string, cols, rows int) {
	if rows > 0 {
		ref := fmt.Sprintf("A1:%s", cell(cols-1, rows+1))
		f.AutoFilter(sheet, ref, []excelize.AutoFilterOptions{})
	}
	f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col+1, row)
	return name
}

func decision(p domain.Participant) string {
	switch {
	case p.ClientValidated:
		return "validated"
	case p.ClientRefused:
		return "refused"
	case p.ProposedToClient:
		return "pending"
	default:
		return ""
	}
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
