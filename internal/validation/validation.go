// Package validation содержит функции валидации входных данных.
package validation

import "strings"

// IsValidEmail выполняет грубую проверку адреса электронной почты:
// непустые локальная часть и домен с точкой, без пробелов.
func IsValidEmail(email string) bool {
	if email == "" || strings.ContainsAny(email, " \t\r\n") {
		return false
	}

	at := strings.IndexByte(email, '@')
	if at <= 0 || at != strings.LastIndexByte(email, '@') {
		return false
	}

	domain := email[at+1:]
	dot := strings.IndexByte(domain, '.')
	if dot <= 0 || dot == len(domain)-1 {
		return false
	}

	return true
}

// IsValidCurrency проверяет, что код валюты состоит из трёх латинских букв
// в верхнем регистре (формат ISO 4217).
func IsValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
