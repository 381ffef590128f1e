package ingest

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/paddock-labs/tracker-cli/internal/lake"
	"github.com/paddock-labs/tracker-cli/internal/model"
)

func newTestLake(t *testing.T) *lake.Lake {
	t.Helper()
	return lake.New(lake.Config{Root: t.TempDir()})
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// buildRaw runs a full ingest against a manifest body with local defaults.
func buildRaw(t *testing.T, lk *lake.Lake, manifest string) (int, error) {
	t.Helper()
	ing := New(lk, Options{
		Manifest: writeManifest(t, manifest),
		WorkDir:  t.TempDir(),
	})
	return ing.BuildRaw(context.Background())
}

const (
	racesCSV = `year,raceId,name,date
2021,1,Bahrain Grand Prix,2021-03-28
2021,2,Imola Grand Prix,\N
`
	constructorsCSV = `name,constructorId,nationality
Ferrari,6,Italian
McLaren,1,British
`
	resultsCSV = `constructorResultsId,raceId,constructorId,points,status
1,1,6,18,\N
2,1,1,10.5,\N
3,2,6,\N,D
4,99,6,6,\N
5,1,77,1,\N
`
)

func localManifest(races, constructors, results string) string {
	return fmt.Sprintf(`
sources:
  races:
    url: %s
  constructors:
    url: %s
  constructor_results:
    url: %s
`, races, constructors, results)
}

func TestBuildRaw_LocalSources(t *testing.T) {
	dir := t.TempDir()
	races := writeSource(t, dir, "races.csv", racesCSV)
	constructors := writeSource(t, dir, "constructors.csv", constructorsCSV)
	results := writeSource(t, dir, "constructor_results.csv", resultsCSV)

	lk := newTestLake(t)
	n, err := buildRaw(t, lk, localManifest(races, constructors, results))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	records, err := lk.ReadRaw()
	require.NoError(t, err)
	require.Len(t, records, 5)

	// Fully joined row.
	assert.Equal(t, model.RawPointRecord{
		RaceID: 1, RaceDate: "2021-03-28", ConstructorID: 6, ConstructorName: "Ferrari", Points: "18",
	}, records[0])

	// NA race date and NA points both land as empty text.
	assert.Equal(t, model.RawPointRecord{
		RaceID: 2, RaceDate: "", ConstructorID: 6, ConstructorName: "Ferrari", Points: "",
	}, records[2])

	// Left join: unknown race keeps the row with an empty date.
	assert.Equal(t, model.RawPointRecord{
		RaceID: 99, RaceDate: "", ConstructorID: 6, ConstructorName: "Ferrari", Points: "6",
	}, records[3])

	// Left join: unknown constructor keeps the row with an empty name.
	assert.Equal(t, model.RawPointRecord{
		RaceID: 1, RaceDate: "2021-03-28", ConstructorID: 77, ConstructorName: "", Points: "1",
	}, records[4])
}

func makeZIP(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestBuildRaw_HTTPZipSource(t *testing.T) {
	archive := makeZIP(t, map[string]string{
		"races.csv":  racesCSV,
		"status.csv": "statusId,status\n1,Finished\n",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/downloads/f1db_csv.zip", r.URL.Path)
		w.Write(archive) //nolint:errcheck
	}))
	defer srv.Close()

	dir := t.TempDir()
	constructors := writeSource(t, dir, "constructors.csv", constructorsCSV)
	results := writeSource(t, dir, "constructor_results.csv", resultsCSV)

	lk := newTestLake(t)
	n, err := buildRaw(t, lk, fmt.Sprintf(`
sources:
  races:
    url: %s/downloads/f1db_csv.zip
    zip_member: races.csv
  constructors:
    url: %s
  constructor_results:
    url: %s
`, srv.URL, constructors, results))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	records, err := lk.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, "2021-03-28", records[0].RaceDate)
}

func TestBuildRaw_ZippedSingleFileSource(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "constructors.zip")
	require.NoError(t, os.WriteFile(zipPath, makeZIP(t, map[string]string{
		"constructors.csv": constructorsCSV,
	}), 0o644))

	races := writeSource(t, dir, "races.csv", racesCSV)
	results := writeSource(t, dir, "constructor_results.csv", resultsCSV)

	lk := newTestLake(t)
	n, err := buildRaw(t, lk, localManifest(races, zipPath, results))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestBuildRaw_XLSXSource(t *testing.T) {
	dir := t.TempDir()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Constructors")
	require.NoError(t, err)
	for _, rowData := range [][]string{{"constructorId", "name"}, {"6", "Ferrari"}, {"1", "McLaren"}} {
		row := sheet.AddRow()
		for _, cell := range rowData {
			row.AddCell().SetString(cell)
		}
	}
	xlsxPath := filepath.Join(dir, "constructors.xlsx")
	require.NoError(t, f.Save(xlsxPath))

	races := writeSource(t, dir, "races.csv", racesCSV)
	results := writeSource(t, dir, "constructor_results.csv", resultsCSV)

	lk := newTestLake(t)
	n, err := buildRaw(t, lk, fmt.Sprintf(`
sources:
  races:
    url: %s
  constructors:
    url: %s
    format: xlsx
    sheet: Constructors
  constructor_results:
    url: %s
`, races, xlsxPath, results))
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	records, err := lk.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, "Ferrari", records[0].ConstructorName)
}

func TestBuildRaw_CharsetSource(t *testing.T) {
	dir := t.TempDir()

	// windows-1252 encoded constructors table: ë is 0xEB.
	encoded := append([]byte("constructorId,name\n15,Citro"), 0xEB, 'n', '\n')
	constructors := filepath.Join(dir, "constructors.csv")
	require.NoError(t, os.WriteFile(constructors, encoded, 0o644))

	races := writeSource(t, dir, "races.csv", racesCSV)
	results := writeSource(t, dir, "constructor_results.csv", "raceId,constructorId,points\n1,15,9\n")

	lk := newTestLake(t)
	n, err := buildRaw(t, lk, fmt.Sprintf(`
sources:
  races:
    url: %s
  constructors:
    url: %s
    charset: windows-1252
  constructor_results:
    url: %s
`, races, constructors, results))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	records, err := lk.ReadRaw()
	require.NoError(t, err)
	assert.Equal(t, "Citroën", records[0].ConstructorName)
}

func TestBuildRaw_DuplicateResultKey(t *testing.T) {
	dir := t.TempDir()
	races := writeSource(t, dir, "races.csv", racesCSV)
	constructors := writeSource(t, dir, "constructors.csv", constructorsCSV)
	results := writeSource(t, dir, "constructor_results.csv",
		"raceId,constructorId,points\n1,6,18\n1,6,4\n")

	lk := newTestLake(t)
	_, err := buildRaw(t, lk, localManifest(races, constructors, results))
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrIntegrity), "got %v", err)
	assert.Contains(t, err.Error(), "(race_id=1, constructor_id=6)")
}

func TestBuildRaw_MalformedID(t *testing.T) {
	dir := t.TempDir()
	races := writeSource(t, dir, "races.csv", racesCSV)
	constructors := writeSource(t, dir, "constructors.csv", constructorsCSV)
	results := writeSource(t, dir, "constructor_results.csv",
		"raceId,constructorId,points\nfirst,6,18\n")

	lk := newTestLake(t)
	_, err := buildRaw(t, lk, localManifest(races, constructors, results))
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrParse), "got %v", err)
}

func TestBuildRaw_MissingColumn(t *testing.T) {
	dir := t.TempDir()
	races := writeSource(t, dir, "races.csv", "raceId,name\n1,Bahrain Grand Prix\n")
	constructors := writeSource(t, dir, "constructors.csv", constructorsCSV)
	results := writeSource(t, dir, "constructor_results.csv", resultsCSV)

	lk := newTestLake(t)
	_, err := buildRaw(t, lk, localManifest(races, constructors, results))
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrSchema), "got %v", err)
	assert.Contains(t, err.Error(), `missing column "date"`)
}

func TestBuildRaw_EmptySource(t *testing.T) {
	dir := t.TempDir()
	races := writeSource(t, dir, "races.csv", racesCSV)
	constructors := writeSource(t, dir, "constructors.csv", "")
	results := writeSource(t, dir, "constructor_results.csv", resultsCSV)

	lk := newTestLake(t)
	_, err := buildRaw(t, lk, localManifest(races, constructors, results))
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrSchema), "got %v", err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestBuildRaw_LocalSourceMissing(t *testing.T) {
	dir := t.TempDir()
	constructors := writeSource(t, dir, "constructors.csv", constructorsCSV)
	results := writeSource(t, dir, "constructor_results.csv", resultsCSV)

	lk := newTestLake(t)
	_, err := buildRaw(t, lk, localManifest(filepath.Join(dir, "nope.csv"), constructors, results))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local source races")
}

func TestBuildRaw_UnsupportedScheme(t *testing.T) {
	dir := t.TempDir()
	constructors := writeSource(t, dir, "constructors.csv", constructorsCSV)
	results := writeSource(t, dir, "constructor_results.csv", resultsCSV)

	lk := newTestLake(t)
	_, err := buildRaw(t, lk, localManifest("s3://bucket/races.csv", constructors, results))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported url scheme "s3"`)
}
