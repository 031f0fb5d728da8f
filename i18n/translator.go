package i18n

import "strings"

// Translator retrieves localized messages for error codes.
// data provides optional metadata to embed in the message (for example,
// "expected" or "variant").
type Translator interface {
	Message(code string, data map[string]string) string
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

func (t dictTranslator) Message(code string, data map[string]string) string {
	var tmpl string
	switch t.lang {
	case "ja":
		switch code {
		case "exhausted":
			tmpl = "入力が不足しています"
		case "fixed_mismatch":
			tmpl = "{field} の固定値が一致しません: 期待値 {expected}, 実際 {actual}"
		case "assertion_failed":
			tmpl = "フィールド '{field}' の値 ({value}) がアサーションを満たしません: {assert}"
		case "unknown_variant":
			tmpl = "キー {key} に一致するバリアントがありません"
		case "reader_failed":
			tmpl = "カスタムリーダーが失敗しました"
		case "expression_error":
			tmpl = "式の評価に失敗しました"
		case "context_mismatch":
			tmpl = "コンテキストが一致しません"
		case "depth_exceeded":
			tmpl = "ネストが深すぎます"
		case "trailing_data":
			tmpl = "未消費のデータがあります"
		case "schema_definition":
			tmpl = "スキーマ定義エラー"
		case "undefined_schema":
			tmpl = "未定義のスキーマです"
		case "schema_cycle":
			tmpl = "スキーマが循環しています"
		case "parse_error":
			tmpl = "解析エラー"
		}
	default: // "en"
		switch code {
		case "exhausted":
			tmpl = "input exhausted"
		case "fixed_mismatch":
			tmpl = "{field} value didn't match: expected {expected}, got {actual}"
		case "assertion_failed":
			tmpl = "value of field '{field}' ({value}) didn't pass assertion: {assert}"
		case "unknown_variant":
			tmpl = "no variant matches key {key}"
		case "reader_failed":
			tmpl = "custom reader failed"
		case "expression_error":
			tmpl = "expression evaluation failed"
		case "context_mismatch":
			tmpl = "context mismatch"
		case "depth_exceeded":
			tmpl = "nesting too deep"
		case "trailing_data":
			tmpl = "trailing data after decode"
		case "schema_definition":
			tmpl = "invalid schema definition"
		case "undefined_schema":
			tmpl = "undefined schema"
		case "schema_cycle":
			tmpl = "schema reference cycle"
		case "parse_error":
			tmpl = "parse error"
		}
	}
	if tmpl == "" {
		return code
	}
	return expand(tmpl, data)
}

// expand substitutes {key} placeholders. Unknown keys are left as-is.
func expand(tmpl string, data map[string]string) string {
	if len(data) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}
	pairs := make([]string, 0, len(data)*2)
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

var currentTranslator Translator = dictTranslator{lang: "en"}

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if lang != "ja" {
		lang = "en"
	}
	currentTranslator = dictTranslator{lang: lang}
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	if tr == nil {
		currentTranslator = dictTranslator{lang: "en"}
		return
	}
	currentTranslator = tr
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string { return currentTranslator.Message(code, data) }
