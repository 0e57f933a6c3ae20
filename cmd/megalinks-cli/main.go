// megalinks-cli — операторская утилита: анализ ссылки MEGA без БД,
// ручное обновление анализа сохранённых ссылок.
package main

import "github.com/megalinks/megalinks/cmd/megalinks-cli/cmd"

func main() {
	cmd.Execute()
}
