package main

import "strings"

// splitStatements 分割SQL语句（按分号分割，忽略字符串、$$ 函数体和注释中的分号）
func splitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	var quote rune
	inDollar := false
	inComment := false

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		r := runes[i]

		switch {
		case inComment:
			if r == '\n' {
				inComment = false
				current.WriteRune(r)
			}
			continue

		case inDollar:
			if r == '$' && i+1 < len(runes) && runes[i+1] == '$' {
				inDollar = false
				current.WriteString("$$")
				i++
				continue
			}

		case quote != 0:
			if r == quote {
				quote = 0
			}

		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			inComment = true
			i++
			continue

		case r == '$' && i+1 < len(runes) && runes[i+1] == '$':
			inDollar = true
			current.WriteString("$$")
			i++
			continue

		case r == '\'' || r == '"' || r == '`':
			quote = r

		case r == ';':
			current.WriteRune(r)
			flush()
			continue
		}

		current.WriteRune(r)
	}
	flush()

	return statements
}
