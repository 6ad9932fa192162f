package schema

import "strings"

const (
	// LanguageJavaScript is JavaScript run on Node.
	LanguageJavaScript Language = "javascript"
	// LanguageTypeScript is TypeScript.
	LanguageTypeScript Language = "typescript"
	// LanguagePython is Python 3.
	LanguagePython Language = "python"
	// LanguageJava is Java.
	LanguageJava Language = "java"
	// LanguageCSharp is C# on Mono.
	LanguageCSharp Language = "csharp"
	// LanguagePHP is PHP.
	LanguagePHP Language = "php"
)

// DefaultLanguage is the language a new session starts with.
const DefaultLanguage = LanguageJavaScript

type languageInfo struct {
	version string
	snippet string
}

var languageOrder = []Language{
	LanguageJavaScript,
	LanguageTypeScript,
	LanguagePython,
	LanguageJava,
	LanguageCSharp,
	LanguagePHP,
}

var languages = map[Language]languageInfo{
	LanguageJavaScript: {
		version: "18.15.0",
		snippet: `
function greet(name) {
	console.log("Hello, " + name + "!");
}

greet("Alex");
`,
	},
	LanguageTypeScript: {
		version: "5.0.3",
		snippet: `
type Params = {
	name: string;
}

function greet(data: Params) {
	console.log("Hello, " + data.name + "!");
}

greet({ name: "Alex" });
`,
	},
	LanguagePython: {
		version: "3.10.0",
		snippet: `
def greet(name):
	print("Hello, " + name + "!")

greet("Alex")
`,
	},
	LanguageJava: {
		version: "15.0.2",
		snippet: `
public class HelloWorld {
	public static void main(String[] args) {
		System.out.println("Hello World");
	}
}
`,
	},
	LanguageCSharp: {
		version: "6.12.0",
		snippet: `using System;

namespace HelloWorld
{
	class Hello {
		static void Main(string[] args) {
			Console.WriteLine("Hello World in C#");
		}
	}
}
`,
	},
	LanguagePHP: {
		version: "8.2.3",
		snippet: `<?php

$name = 'Alex';
echo $name;
`,
	},
}

// SupportedLanguages returns the supported languages in display order.
func SupportedLanguages() []Language {
	out := make([]Language, len(languageOrder))
	copy(out, languageOrder)
	return out
}

// Valid reports whether the language is supported.
func (l Language) Valid() bool {
	_, ok := languages[l]
	return ok
}

// Snippet returns the canonical starter snippet for the language.
func (l Language) Snippet() string {
	return languages[l].snippet
}

// RuntimeVersion returns the execution runtime version pinned for the language.
func (l Language) RuntimeVersion() string {
	return languages[l].version
}

// NormalizeLanguage validates a language name, accepting common aliases.
func NormalizeLanguage(name string) (Language, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	switch normalized {
	case "js", "node":
		return LanguageJavaScript, nil
	case "ts":
		return LanguageTypeScript, nil
	case "py", "python3":
		return LanguagePython, nil
	case "cs", "c#":
		return LanguageCSharp, nil
	}
	lang := Language(normalized)
	if !lang.Valid() {
		return "", ErrInvalidLanguage
	}
	return lang, nil
}
