package project

import (
	"irasm/internal/source"
)

// ImportMeta is one import of a unit, by module identity ("0x1::Coin").
type ImportMeta struct {
	Ident string
	Span  source.Span
}

// UnitMeta is what the batch planner knows about a unit before assembling it.
type UnitMeta struct {
	Ident       string // "0x42::Coin"; scripts use their path
	Path        string
	Script      bool
	Span        source.Span
	Imports     []ImportMeta
	ContentHash Digest // хеш содержимого файла (из FileSet)
	UnitHash    Digest // агрегированный хеш с учётом зависимостей
}
