package exporter

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"macrosynergy/internal/config"
	apperrors "macrosynergy/internal/errors"
	"macrosynergy/internal/qdf"
)

func setupTestEnv(t *testing.T) (*CSVWriter, *config.Paths) {
	t.Helper()
	paths := config.NewPaths(t.TempDir(), config.Default().Paths)
	return NewCSVWriter(paths), paths
}

func sampleFrame() qdf.Frame {
	a := qdf.NewObservation("AUD", "FXXR_NSA", qdf.Date(2023, 1, 2), 1.5)
	a.Grading = 1
	b := qdf.NewObservation("AUD", "FXXR_NSA", qdf.Date(2023, 1, 3), math.NaN())
	c := qdf.NewObservation("USD", "EQXR_NSA", qdf.Date(2023, 1, 2), -0.25)
	return qdf.Frame{a, b, c}
}

func TestCSVWriter_WriteCSV(t *testing.T) {
	writer, paths := setupTestEnv(t)

	require.NoError(t, writer.WriteCSV("out/plain.csv", WriteOptions{
		Headers:   []string{"a", "b"},
		Records:   [][]string{{"1", "2"}},
		BOMPrefix: true,
	}))
	require.NoError(t, writer.AppendToCSV("out/plain.csv", [][]string{{"3", "4"}}))

	data, err := os.ReadFile(filepath.Join(paths.ExportsDir, "out", "plain.csv"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, bom))
	assert.Equal(t, "a,b\n1,2\n3,4\n", string(bytes.TrimPrefix(data, bom)))

	abs := filepath.Join(t.TempDir(), "abs.csv")
	assert.Equal(t, abs, writer.Path(abs))
}

func TestFrameCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrameCSV(&buf, sampleFrame(), []string{"value", "grading"}))
	assert.Equal(t, strings.Join([]string{
		"cid,xcat,real_date,value,grading",
		"AUD,FXXR_NSA,2023-01-02,1.5,1",
		"AUD,FXXR_NSA,2023-01-03,,",
		"USD,EQXR_NSA,2023-01-02,-0.25,",
		"",
	}, "\n"), buf.String())

	got, err := ReadFrameCSV(&buf)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1.5, got[0].Value)
	assert.Equal(t, 1.0, got[0].Grading)
	assert.True(t, math.IsNaN(got[0].EopLag))
	assert.True(t, math.IsNaN(got[1].Value))
	assert.Equal(t, "EQXR_NSA", got[2].Xcat)

	assert.True(t, apperrors.IsValidationError(WriteFrameCSV(&buf, nil, []string{"close"})))
}

func TestReadFrameCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(error) bool
	}{
		{"empty", "", apperrors.IsInvalidDataframeError},
		{"missing keys", "cid,value\nAUD,1\n", apperrors.IsInvalidDataframeError},
		{"no metrics", "cid,xcat,real_date\nAUD,FX,2023-01-02\n", apperrors.IsInvalidDataframeError},
		{"bad date", "cid,xcat,real_date,value\nAUD,FX,02/01/2023,1\n", func(err error) bool {
			return apperrors.TypeOf(err) == apperrors.ErrTypeParsing
		}},
		{"bad value", "cid,xcat,real_date,value\nAUD,FX,2023-01-02,x\n", func(err error) bool {
			return apperrors.TypeOf(err) == apperrors.ErrTypeParsing
		}},
		{"duplicate", "cid,xcat,real_date,value\nAUD,FX,2023-01-02,1\nAUD,FX,2023-01-02,2\n", apperrors.IsValidationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrameCSV(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestReadFrameCSV_IgnoresExtraColumns(t *testing.T) {
	in := "\ufeffreal_date,cid,xcat,note,value\n2023-01-02,AUD,FX,hello,2\n"
	got, err := ReadFrameCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].Value)
	assert.True(t, math.IsNaN(got[0].Grading))
}

func TestCSVWriter_ExportFrameAndImport(t *testing.T) {
	writer, paths := setupTestEnv(t)
	require.NoError(t, writer.ExportFrame("fx.csv", sampleFrame(), nil))

	got, err := ImportFrame(filepath.Join(paths.ExportsDir, "fx.csv"))
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = ImportFrame(filepath.Join(paths.ExportsDir, "fx.parquet"))
	assert.True(t, apperrors.IsValidationError(err))
}

func TestCSVWriter_ExportWide(t *testing.T) {
	writer, paths := setupTestEnv(t)
	require.NoError(t, writer.ExportWide("wide.csv", sampleFrame(), "value"))

	data, err := os.ReadFile(filepath.Join(paths.ExportsDir, "wide.csv"))
	require.NoError(t, err)
	assert.Equal(t, strings.Join([]string{
		"real_date,AUD_FXXR_NSA,USD_EQXR_NSA",
		"2023-01-02,1.5,-0.25",
		"2023-01-03,,",
		"",
	}, "\n"), string(data))

	assert.True(t, apperrors.IsValidationError(writer.ExportWide("wide.csv", sampleFrame(), "close")))
}

func TestXLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fx.xlsx")
	require.NoError(t, SaveXLSX(path, sampleFrame(), []string{"value", "grading"}))

	got, err := ImportFrame(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "AUD", got[0].Cid)
	assert.Equal(t, qdf.Date(2023, 1, 2), got[0].RealDate)
	assert.Equal(t, 1.5, got[0].Value)
	assert.Equal(t, 1.0, got[0].Grading)
	assert.True(t, math.IsNaN(got[1].Value))
	assert.Equal(t, -0.25, got[2].Value)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleFrame(), nil))
	got, err = ReadXLSXFrom(&buf)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	_, err = ReadXLSXFrom(strings.NewReader("not a workbook"))
	assert.Equal(t, apperrors.ErrTypeParsing, apperrors.TypeOf(err))
}

type mockS3 struct {
	mock.Mock
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*s3.PutObjectOutput)
	return out, args.Error(1)
}

func TestS3Uploader(t *testing.T) {
	client := new(mockS3)
	client.On("PutObject", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return aws.ToString(in.Bucket) == "research" &&
			aws.ToString(in.Key) == "exports/daily/fx.csv" &&
			aws.ToString(in.ContentType) == "text/csv" &&
			aws.ToInt64(in.ContentLength) == 5
	})).Return(&s3.PutObjectOutput{}, nil).Once()

	up := NewS3UploaderWithClient(client, S3Config{Bucket: "research", Prefix: "/exports/daily/"})
	path := filepath.Join(t.TempDir(), "fx.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1"), 0o600))

	key, err := up.UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "exports/daily/fx.csv", key)
	client.AssertExpectations(t)

	client.On("PutObject", mock.Anything, mock.Anything).Return(nil, errors.New("denied"))
	_, err = up.Upload(context.Background(), "x.xlsx", []byte("x"))
	assert.Equal(t, apperrors.ErrTypeStorage, apperrors.TypeOf(err))

	_, err = NewS3Uploader(context.Background(), S3Config{})
	assert.True(t, apperrors.IsValidationError(err))

	assert.Equal(t, "x.json", NewS3UploaderWithClient(client, S3Config{Bucket: "b"}).Key("x.json"))
}
