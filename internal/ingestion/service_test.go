package ingestion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rpattn/entitykit/internal/domain"
	"github.com/rpattn/entitykit/internal/entity"
	"github.com/rpattn/entitykit/internal/repository"
)

func newService(t *testing.T, specs []entity.TypeSpec, opts ...Option) (*Service, *entity.Manager) {
	t.Helper()
	registry := entity.NewRegistry()
	for _, spec := range specs {
		_, err := registry.Register(spec)
		require.NoError(t, err)
	}
	mgr := entity.NewManager(registry, repository.NewMemoryStore())
	return NewService(mgr, opts...), mgr
}

func TestImportRegistersInferredType(t *testing.T) {
	ctx := context.Background()
	svc, mgr := newService(t, nil)

	data := "name,age,active,joined\nAlice,30,true,2024-01-15\nBob,25,false,\n"
	summary, err := svc.Import(ctx, Request{TypeName: "Person", FileName: "people.csv", Data: strings.NewReader(data)})
	require.NoError(t, err)

	assert.True(t, summary.TypeRegistered)
	assert.Equal(t, 2, summary.TotalRows)
	assert.Equal(t, 2, summary.Inserted)
	assert.Zero(t, summary.InvalidRows)

	types := map[string]domain.FieldType{}
	required := map[string]bool{}
	for _, field := range summary.Fields {
		types[field.Name] = field.Type
		required[field.Name] = field.Required
	}
	assert.Equal(t, map[string]domain.FieldType{
		"name":   domain.FieldTypeString,
		"age":    domain.FieldTypeInteger,
		"active": domain.FieldTypeBoolean,
		"joined": domain.FieldTypeTimestamp,
	}, types)
	assert.True(t, required["age"])
	assert.False(t, required["joined"])

	alice, err := mgr.LoadBy(ctx, "Person", "name", "Alice")
	require.NoError(t, err)
	assert.Equal(t, int64(30), alice.Get("age"))
	assert.Equal(t, true, alice.Get("active"))
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), alice.Get("joined"))

	bob, err := mgr.LoadBy(ctx, "Person", "name", "Bob")
	require.NoError(t, err)
	assert.False(t, bob.Has("joined"))
}

func TestImportUpdatesByKeyAndCollectsRowErrors(t *testing.T) {
	ctx := context.Background()
	spec := entity.TypeSpec{
		Name: "Customer",
		Fields: []domain.FieldDefinition{
			{Name: "name", Type: domain.FieldTypeString, Required: true},
			{Name: "rank", Type: domain.FieldTypeInteger},
		},
	}
	svc, mgr := newService(t, []entity.TypeSpec{spec})

	existing, err := mgr.New("Customer")
	require.NoError(t, err)
	require.NoError(t, existing.Assign(map[string]any{"name": "Acme", "rank": 1}))
	require.NoError(t, existing.Persist(ctx))
	require.Equal(t, int64(1), existing.Key())

	data := strings.Join([]string{
		"id,name,rank,notes",
		"1,Acme Corp,5,renamed",
		"7,Globex,2,",
		",Initech,abc,",
		",,3,",
	}, "\n")
	summary, err := svc.Import(ctx, Request{TypeName: "Customer", FileName: "customers.csv", Data: strings.NewReader(data)})
	require.NoError(t, err)

	assert.False(t, summary.TypeRegistered)
	assert.Equal(t, 4, summary.TotalRows)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Inserted)
	assert.Equal(t, 2, summary.InvalidRows)
	assert.Equal(t, []string{"notes"}, summary.SkippedColumns)
	require.Len(t, summary.Errors, 2)
	assert.Equal(t, 4, summary.Errors[0].Row)
	assert.Contains(t, summary.Errors[0].Error(), "field rank")
	assert.Equal(t, 5, summary.Errors[1].Row)
	var validation *domain.ValidationError
	assert.True(t, errors.As(summary.Errors[1], &validation))
	assert.NotEmpty(t, summary.Warnings)

	reloaded, err := mgr.Load(ctx, "Customer", 1)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", reloaded.Get("name"))
	assert.Equal(t, int64(5), reloaded.Get("rank"))

	globex, err := mgr.Load(ctx, "Customer", 7)
	require.NoError(t, err)
	assert.Equal(t, "Globex", globex.Get("name"))

	count, err := mgr.Collection("Customer").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestImportRunsLifecycleHooks(t *testing.T) {
	ctx := context.Background()
	var seen []string
	spec := entity.TypeSpec{
		Name:   "Tag",
		Fields: []domain.FieldDefinition{{Name: "label", Type: domain.FieldTypeString}},
		Hooks: entity.HookFuncs{
			OnPrePersist: func(ctx context.Context, e *entity.Entity) error {
				label, _ := entity.Value[string](e, "label")
				if label == "forbidden" {
					return errors.New("label not allowed")
				}
				seen = append(seen, label)
				return nil
			},
		},
	}
	svc, _ := newService(t, []entity.TypeSpec{spec})

	summary, err := svc.Import(ctx, Request{
		TypeName: "Tag",
		FileName: "tags.csv",
		Data:     strings.NewReader("label\nred\nforbidden\nblue\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"red", "blue"}, seen)
	require.Len(t, summary.Errors, 1)
	var hookErr *entity.HookError
	assert.True(t, errors.As(summary.Errors[0], &hookErr))
}

func TestImportExcelWithTablePreparer(t *testing.T) {
	ctx := context.Background()

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Report"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"id", "City Name", "population"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]any{"par", "Paris", 2148000}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"lon", "London", 8982000}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	var prepared []domain.FieldDefinition
	preparer := func(ctx context.Context, table domain.Table, fields []domain.FieldDefinition) error {
		assert.Equal(t, "City", table.Name)
		prepared = fields
		return nil
	}
	svc, mgr := newService(t, nil, WithTablePreparer(preparer))

	header := 1
	summary, err := svc.Import(ctx, Request{
		TypeName:       "City",
		FileName:       "cities.XLSX",
		Data:           bytes.NewReader(buf.Bytes()),
		HeaderRowIndex: &header,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Inserted)

	require.Len(t, prepared, 3)
	assert.Equal(t, domain.FieldDefinition{Name: "id", Type: domain.FieldTypeString, Required: true}, prepared[0])
	assert.Equal(t, "City_Name", prepared[1].Name)

	paris, err := mgr.Load(ctx, "City", "par")
	require.NoError(t, err)
	assert.Equal(t, "Paris", paris.Get("City_Name"))
	assert.Equal(t, int64(2148000), paris.Get("population"))
}

func TestImportRejectsBadRequests(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)

	_, err := svc.Import(ctx, Request{FileName: "a.csv", Data: strings.NewReader("a\n1\n")})
	assert.Error(t, err)

	_, err = svc.Import(ctx, Request{TypeName: "Thing", FileName: "a.csv", Data: strings.NewReader("")})
	assert.EqualError(t, err, "file is empty")

	_, err = svc.Import(ctx, Request{TypeName: "Thing", FileName: "a.json", Data: strings.NewReader("{}")})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = svc.Import(ctx, Request{TypeName: "Thing", FileName: "a.csv", Data: strings.NewReader("id\n1\n")})
	assert.EqualError(t, err, "no fields inferred from data set")
}

func TestReadTable(t *testing.T) {
	payload := append([]byte{0xEF, 0xBB, 0xBF}, []byte(",,\nFirst Name,first.name,,items[0]\nAda,Lovelace,x,y\n,,,\nAlan\n")...)
	table, err := ReadTable("people.csv", payload, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"First_Name", "first_name", "column_3", "items_0"}, table.Headers)
	assert.Equal(t, "First Name", table.RawHeaders[0])
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"Alan", "", "", ""}, table.Rows[1])
	assert.Equal(t, 3, table.RowNumber(0))

	outOfRange := 9
	_, err = ReadTable("people.csv", payload, &outOfRange)
	assert.Error(t, err)
}

func TestSanitizeHeadersDeduplicates(t *testing.T) {
	assert.Equal(t, []string{"name", "name_2", "name_3"}, sanitizeHeaders([]string{"name", "name", " name "}))
}

func TestInferFields(t *testing.T) {
	table := Table{
		Headers: []string{"flag", "count", "ratio", "when", "meta", "label", "empty"},
		Rows: [][]string{
			{"yes", "1", "1.5", "2024-01-02T03:04:05Z", `{"a":1}`, "x", ""},
			{"no", "2.0", "2", "2024-02-03", `[1,2]`, "12", ""},
		},
	}
	got := map[string]domain.FieldType{}
	for _, def := range InferFields(table) {
		got[def.Name] = def.Type
	}
	assert.Equal(t, map[string]domain.FieldType{
		"flag":  domain.FieldTypeBoolean,
		"count": domain.FieldTypeInteger,
		"ratio": domain.FieldTypeFloat,
		"when":  domain.FieldTypeTimestamp,
		"meta":  domain.FieldTypeJSON,
		"label": domain.FieldTypeString,
		"empty": domain.FieldTypeString,
	}, got)
}

func TestCoerceCell(t *testing.T) {
	tests := []struct {
		fieldType domain.FieldType
		raw       string
		want      any
		wantErr   bool
	}{
		{domain.FieldTypeInteger, "42", int64(42), false},
		{domain.FieldTypeInteger, "4.0", int64(4), false},
		{domain.FieldTypeInteger, "4.5", nil, true},
		{domain.FieldTypeFloat, "4.5", 4.5, false},
		{domain.FieldTypeBoolean, "Y", true, false},
		{domain.FieldTypeBoolean, "maybe", nil, true},
		{domain.FieldTypeJSON, "plain", "plain", false},
		{domain.FieldTypeJSON, `{"a":1}`, map[string]any{"a": float64(1)}, false},
		{domain.FieldTypeReference, "42", int64(42), false},
		{domain.FieldTypeReference, "u-1", "u-1", false},
		{domain.FieldTypeString, "007", "007", false},
	}
	for _, tc := range tests {
		got, err := coerceCell(tc.fieldType, tc.raw)
		if tc.wantErr {
			assert.Error(t, err, "%s %q", tc.fieldType, tc.raw)
			continue
		}
		require.NoError(t, err, "%s %q", tc.fieldType, tc.raw)
		assert.Equal(t, tc.want, got, "%s %q", tc.fieldType, tc.raw)
	}
}
