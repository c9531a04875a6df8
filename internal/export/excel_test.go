package export

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"staffline/internal/domain"
	"staffline/internal/engine"
	"staffline/internal/quota"
	"staffline/internal/scoring"
)

func TestPathAddsExtension(t *testing.T) {
	if got := Path("out/report"); got != filepath.Clean("out/report.xlsx") {
		t.Fatalf("unexpected path %q", got)
	}
	if got := Path("report.XLSX"); got != "report.XLSX" {
		t.Fatalf("existing extension should be kept, got %q", got)
	}
}

func TestRankingWorkbook(t *testing.T) {
	r := scoring.Ranking{
		MaxScore: 100,
		Results: []scoring.Ranked{
			{
				Candidate: domain.Candidate{FirstName: "Sophie", LastName: "Martin", City: "Lyon", Availability: domain.Available},
				Score:     82.456,
				Breakdown: scoring.Breakdown{Skills: 40, Experience: 22.456, Availability: 15, Location: 5},
				Reason:    "forklift licence",
			},
			{
				Candidate: domain.Candidate{FirstName: "Karim", City: "Paris", Availability: domain.Busy},
				Score:     10,
				Breakdown: scoring.Breakdown{Skills: 10},
			},
		},
	}
	path, err := Ranking(r, "Cariste de nuit", filepath.Join(t.TempDir(), "ranking"))
	if err != nil {
		t.Fatalf("export ranking: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 || sheets[0] != summarySheet || sheets[1] != rankingSheet {
		t.Fatalf("unexpected sheets %v", sheets)
	}
	rows, err := f.GetRows(rankingSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}
	if rows[1][1] != "Sophie Martin" || rows[1][4] != "82.46" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[2][0] != "2" || rows[2][1] != "Karim" {
		t.Fatalf("unexpected second row %v", rows[2])
	}
	mode, err := f.GetCellValue(summarySheet, "B7")
	if err != nil || mode != "capability" {
		t.Fatalf("unexpected mode %q (%v)", mode, err)
	}
}

func TestPipelineWorkbook(t *testing.T) {
	comment := "bon profil"
	reply := "OUI"
	d := engine.PipelineDetail{
		Pipeline: domain.Pipeline{ID: "pl-1", Status: domain.PipelineCompleted},
		Mission:  domain.Mission{Title: "Cariste de nuit", Location: "Lyon"},
		Quota:    quota.Evaluate(1, 1),
		Participants: []engine.ParticipantDetail{
			{
				Participant: domain.Participant{
					OutreachStatus:   domain.OutreachAccepted,
					LastResponse:     &reply,
					ProposedToClient: true,
					ClientValidated:  true,
					ClientComment:    &comment,
					Visibility:       domain.VisibilityPartial,
				},
				Candidate: domain.Candidate{FirstName: "Sophie", LastName: "Martin", Phone: "0612345678"},
			},
			{
				Participant: domain.Participant{OutreachStatus: domain.OutreachSent, Visibility: domain.VisibilityPartial},
				Candidate:   domain.Candidate{FirstName: "Karim", Phone: "0611111111"},
			},
		},
	}
	path, err := Pipeline(d, filepath.Join(t.TempDir(), "pipeline.xlsx"))
	if err != nil {
		t.Fatalf("export pipeline: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(participantsSheet)
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus two rows, got %d", len(rows))
	}
	want := []string{"Sophie Martin", "0612345678", "ACCEPTED", "OUI", "yes", "validated", "bon profil", "PARTIAL"}
	for i, w := range want {
		if rows[1][i] != w {
			t.Fatalf("column %d: got %q want %q", i, rows[1][i], w)
		}
	}
	if rows[2][2] != "SENT" || rows[2][4] != "no" {
		t.Fatalf("unexpected second row %v", rows[2])
	}
	status, _ := f.GetCellValue(summarySheet, "B6")
	if status != "COMPLETED" {
		t.Fatalf("unexpected status cell %q", status)
	}
}
