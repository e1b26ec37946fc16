package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ekaya-inc/ekaya-dbintel/pkg/models"
)

func versionFixture() *models.DatabaseSchema {
	return &models.DatabaseSchema{
		Engine: models.EngineTypePostgres,
		Schemas: []models.SchemaMetadata{
			{Name: "public", Tables: []models.Table{
				{Schema: "public", Name: "users", Kind: models.TableKindTable, Columns: []models.Column{
					{Name: "id", DataType: "integer"},
					{Name: "email", DataType: "text", IsNullable: true},
				}},
				{Schema: "public", Name: "orders", Kind: models.TableKindTable,
					Columns: []models.Column{
						{Name: "id", DataType: "integer"},
						{Name: "user_id", DataType: "integer"},
						{Name: "coupon_id", DataType: "integer", IsNullable: true},
					},
					ForeignKeys: []models.ForeignKey{{Name: "orders_user_fk"}, {Name: "orders_coupon_fk"}},
				},
			}},
			{Name: "audit", Tables: []models.Table{
				{Schema: "audit", Name: "events", Kind: models.TableKindView, Columns: []models.Column{{Name: "at", DataType: "timestamptz"}}},
			}},
		},
	}
}

// permuted returns the fixture with every level reversed.
func permuted() *models.DatabaseSchema {
	s := versionFixture()
	s.Schemas[0], s.Schemas[1] = s.Schemas[1], s.Schemas[0]
	public := &s.Schemas[1]
	public.Tables[0], public.Tables[1] = public.Tables[1], public.Tables[0]
	orders := &public.Tables[0]
	orders.Columns[0], orders.Columns[2] = orders.Columns[2], orders.Columns[0]
	orders.ForeignKeys[0], orders.ForeignKeys[1] = orders.ForeignKeys[1], orders.ForeignKeys[0]
	return s
}

func TestComputeVersion_OrderIndependent(t *testing.T) {
	assert.Equal(t, ComputeVersion(versionFixture()), ComputeVersion(permuted()))
}

func TestComputeVersion_IgnoresNonStructuralFields(t *testing.T) {
	a := versionFixture()
	b := versionFixture()
	b.DatabaseID = "other"
	b.IntrospectedAt = time.Now()
	comment := "customer accounts"
	b.Schemas[0].Tables[0].Comment = &comment
	b.Schemas[0].Tables[0].Indexes = []models.Index{{Name: "users_email_idx", Columns: []string{"email"}}}

	assert.Equal(t, ComputeVersion(a), ComputeVersion(b))
}

func TestComputeVersion_ChangesWithContent(t *testing.T) {
	base := ComputeVersion(versionFixture())

	tests := []struct {
		name   string
		mutate func(*models.DatabaseSchema)
	}{
		{"engine", func(s *models.DatabaseSchema) { s.Engine = models.EngineTypeMySQL }},
		{"schema name", func(s *models.DatabaseSchema) { s.Schemas[1].Name = "history" }},
		{"table name", func(s *models.DatabaseSchema) { s.Schemas[0].Tables[0].Name = "accounts" }},
		{"table kind", func(s *models.DatabaseSchema) { s.Schemas[0].Tables[0].Kind = models.TableKindView }},
		{"column type", func(s *models.DatabaseSchema) { s.Schemas[0].Tables[0].Columns[1].DataType = "varchar" }},
		{"nullability", func(s *models.DatabaseSchema) { s.Schemas[0].Tables[0].Columns[0].IsNullable = true }},
		{"added column", func(s *models.DatabaseSchema) {
			s.Schemas[0].Tables[0].Columns = append(s.Schemas[0].Tables[0].Columns, models.Column{Name: "name", DataType: "text"})
		}},
		{"foreign key name", func(s *models.DatabaseSchema) { s.Schemas[0].Tables[1].ForeignKeys[0].Name = "fk_renamed" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := versionFixture()
			tt.mutate(s)
			assert.NotEqual(t, base, ComputeVersion(s))
		})
	}
}
