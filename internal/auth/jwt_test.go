package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestIssuer(t *testing.T) *TokenIssuer {
	t.Helper()
	secret, err := GenerateSecureSecret()
	if err != nil {
		t.Fatalf("Ошибка генерации секрета: %v", err)
	}
	issuer, err := NewTokenIssuer(secret, time.Hour)
	if err != nil {
		t.Fatalf("Ошибка создания издателя токенов: %v", err)
	}
	return issuer
}

// TestGenerateJWT тестирует создание JWT токена
func TestGenerateJWT(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.Generate("TESTUSER", false, nil)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	if token == "" {
		t.Fatal("Пустой токен")
	}

	// Проверяем, что токен содержит точки (разделители частей JWT)
	if strings.Count(token, ".") != 2 {
		t.Errorf("Неверный формат JWT токена: %s", token)
	}
}

// TestValidateJWT тестирует валидацию JWT токена
func TestValidateJWT(t *testing.T) {
	issuer := newTestIssuer(t)

	token, err := issuer.Generate("VALIDUSER", true, []string{"record", "replay"})
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	claims, err := issuer.Validate(token)
	if err != nil {
		t.Fatalf("Валидный токен определен как недействительный: %v", err)
	}
	if claims.CallSign != "VALIDUSER" {
		t.Errorf("Неверный позывной: %s", claims.CallSign)
	}
	if !claims.IsAdmin {
		t.Error("Флаг администратора потерян")
	}
	if len(claims.Perms) != 2 || claims.Perms[1] != "replay" {
		t.Errorf("Неверный список прав: %v", claims.Perms)
	}
}

// TestValidateInvalidJWT тестирует валидацию недействительного JWT
func TestValidateInvalidJWT(t *testing.T) {
	issuer := newTestIssuer(t)
	other := newTestIssuer(t)

	foreign, err := other.Generate("STRANGER", true, nil)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	testCases := []string{
		"invalid.token.here",
		"",
		"not.a.jwt",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid.signature",
		foreign,
	}

	for _, invalidToken := range testCases {
		claims, err := issuer.Validate(invalidToken)
		if err == nil {
			t.Errorf("Недействительный токен '%s' прошел валидацию", invalidToken)
		}
		if !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Ожидалась ErrInvalidToken, получено %v", err)
		}
		if claims != nil {
			t.Errorf("Для недействительного токена не должно быть claims")
		}
	}
}

// TestExpiredJWT проверяет истечение срока действия токена
func TestExpiredJWT(t *testing.T) {
	issuer := newTestIssuer(t)
	base := time.Now()
	issuer.now = func() time.Time { return base }

	token, err := issuer.Generate("SHORT", false, nil)
	if err != nil {
		t.Fatalf("Ошибка генерации JWT: %v", err)
	}

	issuer.now = func() time.Time { return base.Add(2 * time.Hour) }
	if _, err := issuer.Validate(token); err == nil {
		t.Error("Просроченный токен прошел валидацию")
	}
}

// TestGenerateSecureSecret тестирует генерацию секретного ключа
func TestGenerateSecureSecret(t *testing.T) {
	secret1, err1 := GenerateSecureSecret()
	if err1 != nil {
		t.Fatalf("Ошибка генерации первого секрета: %v", err1)
	}

	secret2, err2 := GenerateSecureSecret()
	if err2 != nil {
		t.Fatalf("Ошибка генерации второго секрета: %v", err2)
	}

	if secret1 == secret2 {
		t.Error("Два последовательных вызова GenerateSecureSecret вернули одинаковый результат")
	}

	// base64 от 32 байт = 44 символа
	if len(secret1) < 40 || len(secret2) < 40 {
		t.Error("Секрет слишком короткий")
	}
}

// TestNewTokenIssuerSecrets тестирует разбор секретного ключа
func TestNewTokenIssuerSecrets(t *testing.T) {
	if _, err := NewTokenIssuer("", time.Minute); err != nil {
		t.Errorf("Пустой секрет должен заменяться случайным: %v", err)
	}
	if _, err := NewTokenIssuer("too-short", time.Minute); err == nil {
		t.Error("Короткий секрет был принят")
	}
	if _, err := NewTokenIssuer(strings.Repeat("k", 32), time.Minute); err != nil {
		t.Errorf("Строковый секрет длиной 32 отклонен: %v", err)
	}
}
