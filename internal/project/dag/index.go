package dag

import (
	"sort"

	"irasm/internal/project"
)

type UnitID uint32

type UnitIndex struct {
	NameToID map[string]UnitID
	IDToName []string
}

// собрать уникальные идентификаторы, sort.Strings, раздать ID по порядку
func BuildIndex(metas []project.UnitMeta) UnitIndex {
	uniq := make(map[string]struct{}, len(metas))
	for _, meta := range metas {
		if meta.Ident != "" {
			uniq[meta.Ident] = struct{}{}
		}
		for _, dep := range meta.Imports {
			if dep.Ident == "" {
				continue
			}
			uniq[dep.Ident] = struct{}{}
		}
	}

	names := make([]string, 0, len(uniq))
	for name := range uniq {
		names = append(names, name)
	}
	sort.Strings(names)

	nameToID := make(map[string]UnitID, len(names))
	for i, name := range names {
		nameToID[name] = UnitID(i)
	}

	return UnitIndex{
		NameToID: nameToID,
		IDToName: names,
	}
}
