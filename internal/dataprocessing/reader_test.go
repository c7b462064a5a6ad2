package dataprocessing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"tradelens/pkg/contracts/domain"
)

const ledgerHeader = "日付,購入金額,ペイアウト,終了時刻,判定レート,レート,取引オプション,取引銘柄,HIGH/LOW,取引番号"

func ledgerCSV(lines ...string) string {
	return ledgerHeader + "\n" + strings.Join(lines, "\n") + "\n"
}

func TestReadCSV(t *testing.T) {
	data := "\uFEFF" + ledgerCSV(
		`"=""2024-01-01T09:00:00""","¥1,000","¥1,900","=""2024-01-01T09:00:15""",150.1,150.2,turbo,USD/JPY,HIGH,1001`,
		``,
		`2024-01-01T10:00:00,1000,0,2024-01-01T10:00:30,150.1,150.2,turbo,USD/JPY,LOW`,
	)

	sheet, err := ReadCSV("ledger.csv", []byte(data), EncodingAuto)
	require.NoError(t, err)

	assert.Equal(t, "ledger.csv", sheet.Name)
	assert.Equal(t, "日付", sheet.Columns[0], "byte order mark must be stripped")
	require.Len(t, sheet.Rows, 2)

	first := sheet.Rows[0]
	assert.Equal(t, 1, first.Line)
	assert.Equal(t, `="2024-01-01T09:00:00"`, first.Fields["日付"])
	assert.Equal(t, "¥1,000", first.Fields["購入金額"])
	assert.Equal(t, "1001", first.Fields["取引番号"])

	second := sheet.Rows[1]
	assert.Equal(t, 3, second.Line, "blank lines keep their place")
	_, ok := second.Fields["取引番号"]
	assert.False(t, ok, "short rows leave trailing columns absent")

	n := newTestNormalizer(t, RowErrorSkip)
	result, err := n.Normalize(context.Background(), sheet)
	require.NoError(t, err)
	require.Len(t, result.Records, 2)
	assert.Equal(t, int64(900), result.Records[0].Profit())
	assert.Equal(t, "USD/JPY", result.Records[0].Instrument())
	assert.Equal(t, "", result.Records[1].TradeID())
}

func TestReadCSVShiftJIS(t *testing.T) {
	utf8Data := ledgerCSV(`2024-01-01T09:00:00,"1,000","1,900",2024-01-01T09:00:15,150.1,150.2,turbo,ドル/円,HIGH,1`)
	var buf bytes.Buffer
	w := transform.NewWriter(&buf, japanese.ShiftJIS.NewEncoder())
	_, err := w.Write([]byte(utf8Data))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	for _, enc := range []SourceEncoding{EncodingAuto, EncodingShiftJIS} {
		t.Run(string(enc), func(t *testing.T) {
			sheet, err := ReadCSV("sjis.csv", buf.Bytes(), enc)
			require.NoError(t, err)
			assert.Equal(t, DefaultColumns().Required(), sheet.Columns)
			require.Len(t, sheet.Rows, 1)
			assert.Equal(t, "ドル/円", sheet.Rows[0].Fields["取引銘柄"])
		})
	}
}

func TestReadCSVErrors(t *testing.T) {
	_, err := ReadCSV("empty.csv", []byte("\n\n"), EncodingUTF8)
	assert.True(t, errors.Is(err, ErrEmptySource))

	_, err = ReadCSV("x.csv", []byte("a,b\n"), "latin1")
	assert.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheetName := f.GetSheetName(0)
	header := make([]interface{}, 0)
	for _, c := range DefaultColumns().Required() {
		header = append(header, c)
	}
	require.NoError(t, f.SetSheetRow(sheetName, "A1", &header))
	row := []interface{}{45292.375, 1000, 1900, 45292.37517361111, 150.1, 150.2, "turbo", "EUR/JPY", "HIGH", "77"}
	require.NoError(t, f.SetSheetRow(sheetName, "A2", &row))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	sheet, err := ReadSource("ledger.xlsx", buf.Bytes(), EncodingAuto)
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 1)

	n := newTestNormalizer(t, RowErrorSkip)
	result, err := n.Normalize(context.Background(), sheet)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec := result.Records[0]
	assert.Equal(t, "77", rec.TradeID())
	assert.Equal(t, 9, rec.OpenedAt().Hour())
	assert.Equal(t, domain.Duration15s, rec.DurationBucket())
	assert.Equal(t, int64(900), rec.Profit())
}

func TestReadLineNumbers(t *testing.T) {
	row := `2024-01-01T09:00:00,1000,1900,2024-01-01T09:00:15,150.1,150.2,turbo,USD/JPY,HIGH,1`

	tests := []struct {
		name string
		data string
		want []int
	}{
		{name: "consecutive", data: ledgerCSV(row, row, row), want: []int{1, 2, 3}},
		{name: "empty line between rows", data: ledgerCSV(row, "", row), want: []int{1, 3}},
		{name: "separator only line", data: ledgerCSV(row, ",,,", "", row), want: []int{1, 4}},
		{name: "blank lines above header", data: "\n,,\n" + ledgerCSV("", row), want: []int{2}},
		{name: "quoted line break", data: ledgerCSV(strings.Replace(row, "turbo", "\"tur\nbo\"", 1), row), want: []int{1, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sheet, err := ReadCSV("ledger.csv", []byte(tt.data), EncodingUTF8)
			require.NoError(t, err)

			got := make([]int, 0, len(sheet.Rows))
			for _, r := range sheet.Rows {
				got = append(got, r.Line)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadXLSXLineNumbers(t *testing.T) {
	f := excelize.NewFile()
	sheetName := f.GetSheetName(0)
	header := make([]interface{}, 0)
	for _, c := range DefaultColumns().Required() {
		header = append(header, c)
	}
	require.NoError(t, f.SetSheetRow(sheetName, "A1", &header))
	row := []interface{}{45292.375, 1000, 1900, 45292.37517361111, 150.1, 150.2, "turbo", "EUR/JPY", "HIGH", "77"}
	require.NoError(t, f.SetSheetRow(sheetName, "A2", &row))
	require.NoError(t, f.SetSheetRow(sheetName, "A5", &row))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	require.NoError(t, f.Close())

	sheet, err := ReadXLSX("ledger.xlsx", bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, 1, sheet.Rows[0].Line)
	assert.Equal(t, 4, sheet.Rows[1].Line)
}

func TestReadSourceDetectsWorkbookBySignature(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue(f.GetSheetName(0), "A1", "日付"))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	sheet, err := ReadSource("upload.bin", buf.Bytes(), EncodingAuto)
	require.NoError(t, err)
	assert.Equal(t, []string{"日付"}, sheet.Columns)
}

func TestCleanHeader(t *testing.T) {
	assert.Equal(t, "日付", CleanHeader("\uFEFF日付"))
	assert.Equal(t, "取引番号", CleanHeader(" \u200B取引番号\u200D "))
	assert.Equal(t, "HIGH/LOW", CleanHeader("HIGH/LOW"))
}
