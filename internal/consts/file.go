package consts

import "os"

const (
	// права доступа к файлу:
	// владелец может читать и писать
	// остальные только читать
	PosixAccessRight = 0644

	// права доступа к директории таблицы
	DirAccessRight = 0755

	// сочетание флагов:
	// создать файл, если не существует (O_CREATE)
	// ошибка, если файл уже существует (O_EXCL)
	// открыть для чтения и записи (O_RDWR)
	CreateIfNotExists = os.O_CREATE | os.O_EXCL | os.O_RDWR

	EtchExtension = ".etch"
	TmpSuffix     = ".tmp"

	CatalogFileName  = "tables" + EtchExtension
	MetadataFileName = "metadata" + EtchExtension
	ShardFilePrefix  = "sub_table_"

	// пустой JSON массив, с которого начинается каждый файл шарда
	EmptyList = "[]"
)
