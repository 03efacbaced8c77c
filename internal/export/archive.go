package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lehigh-university-libraries/figurebench/internal/models"
	"github.com/parquet-go/parquet-go"
)

// ArchiveRow is one history entry in a Parquet archive. Rows are stored
// newest first, matching the session history.
type ArchiveRow struct {
	Position   int    `parquet:"position"`
	Prompt     string `parquet:"prompt"`
	Timestamp  int64  `parquet:"timestamp_ns"`
	Conference string `parquet:"conference"`
	Title      string `parquet:"title"`
	MIMEType   string `parquet:"mime_type"`
	Image      []byte `parquet:"image"`
}

// HistoryItem converts the row back into a history entry.
func (r ArchiveRow) HistoryItem() models.HistoryItem {
	return models.HistoryItem{
		Prompt:    r.Prompt,
		ImageURL:  models.NewImageRef(r.MIMEType, r.Image),
		Timestamp: time.Unix(0, r.Timestamp).UTC(),
	}
}

// ArchiveRows flattens the session history into archive rows.
func ArchiveRows(st models.WorkflowState) ([]ArchiveRow, error) {
	var title string
	if st.Analysis != nil {
		title = st.Analysis.Title
	}
	rows := make([]ArchiveRow, 0, len(st.History))
	for i, item := range st.History {
		mimeType, data, err := item.ImageURL.Decode()
		if err != nil {
			return nil, fmt.Errorf("failed to decode history image %d: %w", i, err)
		}
		rows = append(rows, ArchiveRow{
			Position:   i,
			Prompt:     item.Prompt,
			Timestamp:  item.Timestamp.UnixNano(),
			Conference: string(st.Conference),
			Title:      title,
			MIMEType:   mimeType,
			Image:      data,
		})
	}
	return rows, nil
}

// WriteArchive writes the session history as Parquet to w.
func WriteArchive(w io.Writer, st models.WorkflowState) error {
	rows, err := ArchiveRows(st)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.New("history is empty")
	}

	writer := parquet.NewGenericWriter[ArchiveRow](w)
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("failed to write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	slog.Debug("Wrote history archive", "rows", len(rows))
	return nil
}

// SaveArchive writes the session history to a Parquet file at path.
func SaveArchive(path string, st models.WorkflowState) error {
	var buf bytes.Buffer
	if err := WriteArchive(&buf, st); err != nil {
		return err
	}
	return writeFile(path, buf.Bytes())
}

// ReadArchive loads all rows from a Parquet archive.
func ReadArchive(path string) ([]ArchiveRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	slog.Debug("Parquet archive opened", "path", path, "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[ArchiveRow](pf)
	defer reader.Close()

	var rows []ArchiveRow
	batch := make([]ArchiveRow, 32)
	for {
		n, err := reader.Read(batch)
		rows = append(rows, batch[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read archive rows: %w", err)
		}
	}
	return rows, nil
}
