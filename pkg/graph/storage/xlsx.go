package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/narrative-kg/extract/pkg/graph"
)

// XLSXExporter implements graph.KnowledgeGraphStore as a spreadsheet
// sink: one workbook with Entities, Relations and Evidence sheets.
type XLSXExporter struct {
	filePath string
	file     *excelize.File

	entityRow   int
	relationRow int
	evidenceRow int
}

// NewXLSXExporter creates an exporter writing to filePath on Close.
func NewXLSXExporter(filePath string) *XLSXExporter {
	return &XLSXExporter{filePath: filePath}
}

// Connect creates the workbook and header rows.
func (x *XLSXExporter) Connect(ctx context.Context) error {
	f := excelize.NewFile()

	f.SetSheetName("Sheet1", "Entities")
	if _, err := f.NewSheet("Relations"); err != nil {
		return err
	}
	if _, err := f.NewSheet("Evidence"); err != nil {
		return err
	}

	headers := map[string][]interface{}{
		"Entities":  {"Document", "Canonical", "Type", "Aliases", "Mentions", "EID", "AID", "SP"},
		"Relations": {"Document", "Subject", "Predicate", "Object", "Confidence", "Extractor", "Qualifiers"},
		"Evidence":  {"Document", "Subject", "Predicate", "Object", "Start", "End", "Text"},
	}
	for sheet, row := range headers {
		if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
			return err
		}
	}

	x.file = f
	x.entityRow, x.relationRow, x.evidenceRow = 1, 1, 1
	return nil
}

// Close writes the workbook to disk.
func (x *XLSXExporter) Close() error {
	if x.file == nil {
		return nil
	}
	return x.file.SaveAs(x.filePath)
}

// StoreResult appends one document's entities, relations and evidence.
func (x *XLSXExporter) StoreResult(ctx context.Context, docID string, result *graph.ExtractionResult) error {
	if x.file == nil {
		return fmt.Errorf("xlsx exporter not connected")
	}

	byID := make(map[string]*graph.Entity, len(result.Entities))
	for i := range result.Entities {
		byID[result.Entities[i].ID] = &result.Entities[i]
	}

	for i := range result.Entities {
		ent := &result.Entities[i]
		aliases := ent.AliasSlice()
		sort.Strings(aliases)

		x.entityRow++
		cell, err := excelize.CoordinatesToCellName(1, x.entityRow)
		if err != nil {
			return err
		}
		row := []interface{}{
			docID, ent.Canonical, string(ent.Type), strings.Join(aliases, "; "),
			ent.MentionCount, ent.EID, ent.AID, spString(ent.SP),
		}
		if err := x.file.SetSheetRow("Entities", cell, &row); err != nil {
			return err
		}
	}

	for _, rel := range result.Relations {
		subj, okS := byID[rel.Subj]
		obj, okO := byID[rel.Obj]
		if !okS || !okO {
			continue
		}

		x.relationRow++
		cell, err := excelize.CoordinatesToCellName(1, x.relationRow)
		if err != nil {
			return err
		}
		row := []interface{}{
			docID, subj.Canonical, string(rel.Pred), obj.Canonical,
			rel.Confidence, string(rel.Extractor), qualifierString(rel.Qualifiers),
		}
		if err := x.file.SetSheetRow("Relations", cell, &row); err != nil {
			return err
		}

		for _, ev := range rel.Evidence {
			x.evidenceRow++
			cell, err := excelize.CoordinatesToCellName(1, x.evidenceRow)
			if err != nil {
				return err
			}
			row := []interface{}{
				docID, subj.Canonical, string(rel.Pred), obj.Canonical,
				ev.Start, ev.End, ev.Text,
			}
			if err := x.file.SetSheetRow("Evidence", cell, &row); err != nil {
				return err
			}
		}
	}

	return nil
}

func spString(sp []int) string {
	parts := make([]string, len(sp))
	for i, v := range sp {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ".")
}

func qualifierString(qs []graph.Qualifier) string {
	parts := make([]string, 0, len(qs))
	for _, q := range qs {
		parts = append(parts, fmt.Sprintf("%s=%s", q.Kind, q.Value))
	}
	return strings.Join(parts, "; ")
}
