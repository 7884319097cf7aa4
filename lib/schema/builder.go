package schema

import (
	"vellum/hangar"
	"vellum/lib/value"
)

// Builder assembles a TableDef fluently:
//
//	users := schema.NewTable(1, "users").
//		Column("id", value.BigIntType, false).
//		Column("email", value.TextType, true).
//		PrimaryKey("id").
//		MustBuild()
type Builder struct {
	def TableDef
}

func NewTable(id hangar.TableID, name string) *Builder {
	return &Builder{def: TableDef{ID: id, Name: name}}
}

func (b *Builder) Column(name string, dt value.DataType, nullable bool) *Builder {
	b.def.Columns = append(b.def.Columns, ColumnDef{Name: name, Type: dt, Nullable: nullable})
	return b
}

func (b *Builder) PrimaryKey(columns ...string) *Builder {
	b.def.PrimaryKey = append([]string(nil), columns...)
	return b
}

func (b *Builder) Index(id uint64, name string, columns ...string) *Builder {
	b.def.Indexes = append(b.def.Indexes, IndexDef{ID: id, Name: name, Columns: append([]string(nil), columns...)})
	return b
}

func (b *Builder) Build() (TableDef, error) {
	if err := b.def.validate(); err != nil {
		return TableDef{}, err
	}
	return b.def, nil
}

func (b *Builder) MustBuild() TableDef {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}
