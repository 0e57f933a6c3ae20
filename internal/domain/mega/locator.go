// Пакет mega — разбор ссылок MEGA и эвристики, не требующие сети:
// извлечение идентификатора и ключа из URL, классификация файла по размеру,
// форматирование размера.
//
// Ключ расшифровки извлекается, но не используется: имена и типы файлов
// в MEGA зашифрованы, и расшифровка не реализована.
package mega

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ShareKind — тип публичной ссылки.
type ShareKind string

const (
	KindFolder ShareKind = "folder"
	KindFile   ShareKind = "file"
)

// Домены MEGA: текущий и исторический.
var knownDomains = []string{"mega.nz", "mega.co.nz"}

// ShareLocator — пара (идентификатор, ключ), извлечённая из ссылки.
type ShareLocator struct {
	// RootID — handle корневой папки или файла
	RootID string
	// Key — ключ расшифровки из фрагмента URL
	Key  string
	Kind ShareKind
}

var (
	// ErrNotAFolderURL — URL не соответствует ни одному шаблону ссылки на папку.
	ErrNotAFolderURL = errors.New("не найден шаблон ссылки на папку MEGA")
	// ErrNotAFileURL — URL не соответствует ни одному шаблону ссылки на файл.
	ErrNotAFileURL = errors.New("не найден шаблон ссылки на файл MEGA")
)

// ParseError — ошибка разбора: все шаблоны данного типа перепробованы, ни один не подошёл.
type ParseError struct {
	Kind ShareKind
	URL  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s в URL: %s", e.sentinel().Error(), e.URL)
}

// Unwrap позволяет сравнивать через errors.Is с ErrNotAFolderURL / ErrNotAFileURL.
func (e *ParseError) Unwrap() error {
	return e.sentinel()
}

func (e *ParseError) sentinel() error {
	if e.Kind == KindFile {
		return ErrNotAFileURL
	}
	return ErrNotAFolderURL
}

// sharePattern — один шаблон ссылки. Группа 1 — идентификатор, группа 2 — ключ.
type sharePattern struct {
	name string
	re   *regexp.Regexp
}

// Порядок шаблонов фиксирован: побеждает первый совпавший.
var folderPatterns = []sharePattern{
	{"mega.nz/folder", regexp.MustCompile(`mega\.nz/folder/([0-9a-zA-Z\-_]+)#([0-9a-zA-Z\-_]+)`)},
	{"mega.nz/#F!", regexp.MustCompile(`mega\.nz/#F!([0-9a-zA-Z\-_]+)!([0-9a-zA-Z\-_]+)`)},
	{"mega.co.nz/folder", regexp.MustCompile(`mega\.co\.nz/folder/([0-9a-zA-Z\-_]+)#([0-9a-zA-Z\-_]+)`)},
	{"mega.co.nz/#F!", regexp.MustCompile(`mega\.co\.nz/#F!([0-9a-zA-Z\-_]+)!([0-9a-zA-Z\-_]+)`)},
}

var filePatterns = []sharePattern{
	{"mega.nz/file", regexp.MustCompile(`mega\.nz/file/([0-9a-zA-Z\-_]+)#([0-9a-zA-Z\-_]+)`)},
	{"mega.nz/#!", regexp.MustCompile(`mega\.nz/#!([0-9a-zA-Z\-_]+)!([0-9a-zA-Z\-_]+)`)},
	{"mega.co.nz/file", regexp.MustCompile(`mega\.co\.nz/file/([0-9a-zA-Z\-_]+)#([0-9a-zA-Z\-_]+)`)},
	{"mega.co.nz/#!", regexp.MustCompile(`mega\.co\.nz/#!([0-9a-zA-Z\-_]+)!([0-9a-zA-Z\-_]+)`)},
}

// IsMegaURL сообщает, содержит ли URL один из доменов MEGA.
func IsMegaURL(rawURL string) bool {
	for _, d := range knownDomains {
		if strings.Contains(rawURL, d) {
			return true
		}
	}
	return false
}

// ParseFolder извлекает идентификатор и ключ из ссылки на папку.
// Возвращает *ParseError (errors.Is → ErrNotAFolderURL), если ни один шаблон не подошёл.
func ParseFolder(rawURL string) (*ShareLocator, error) {
	return parse(rawURL, folderPatterns, KindFolder)
}

// ParseFile извлекает идентификатор и ключ из ссылки на файл.
// Возвращает *ParseError (errors.Is → ErrNotAFileURL), если ни один шаблон не подошёл.
func ParseFile(rawURL string) (*ShareLocator, error) {
	return parse(rawURL, filePatterns, KindFile)
}

func parse(rawURL string, patterns []sharePattern, kind ShareKind) (*ShareLocator, error) {
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(rawURL)
		if m == nil {
			continue
		}
		return &ShareLocator{RootID: m[1], Key: m[2], Kind: kind}, nil
	}
	return nil, &ParseError{Kind: kind, URL: rawURL}
}
