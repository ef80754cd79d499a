package snippet

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNormalizer() *Normalizer {
	return &Normalizer{DefaultNamespace: "core.request.snippets.rtest0001"}
}

func TestNormalize_PlainSnippet(t *testing.T) {
	n := testNormalizer()
	src := "package app.billing;\n\npublic class Refund {\n  void run() {}\n}\n"

	got, err := n.Normalize(src)
	require.NoError(t, err)
	assert.Equal(t, "app.billing", got.Package)
	assert.Equal(t, "Refund", got.ClassName)
	assert.Equal(t, "app.billing.Refund", got.QualifiedClassName())
	assert.Equal(t, src, got.Source)
}

func TestNormalize_StripsCodeFence(t *testing.T) {
	n := testNormalizer()
	src := "```java\npackage app;\npublic class Echo {}\n```"

	got, err := n.Normalize(src)
	require.NoError(t, err)
	assert.Equal(t, "app", got.Package)
	assert.NotContains(t, got.Source, "```")
}

func TestNormalize_AssignsDefaultNamespace(t *testing.T) {
	n := testNormalizer()
	got, err := n.Normalize("public class Echo {}\n")
	require.NoError(t, err)
	assert.Equal(t, "core.request.snippets.rtest0001", got.Package)
	assert.True(t, strings.HasPrefix(got.Source, "package core.request.snippets.rtest0001;"))
}

func TestNormalize_NoNamespaceConfigured(t *testing.T) {
	n := &Normalizer{}
	_, err := n.Normalize("public class Echo {}\n")
	require.Error(t, err)
}

func TestNormalize_ClassCount(t *testing.T) {
	n := testNormalizer()

	_, err := n.Normalize("package p;\nclass Internal {}\n")
	var classErr *ClassCountError
	require.ErrorAs(t, err, &classErr)
	assert.Equal(t, 0, classErr.Count)
	assert.Contains(t, classErr.Diagnostic().Message, "no public top-level class")

	_, err = n.Normalize("package p;\npublic class A {}\npublic final class B {}\n")
	require.ErrorAs(t, err, &classErr)
	assert.Equal(t, 2, classErr.Count)
}

func TestNormalize_ClassModifiers(t *testing.T) {
	n := testNormalizer()

	got, err := n.Normalize("package p;\npublic final class Sealed {}\n")
	require.NoError(t, err)
	assert.Equal(t, "Sealed", got.ClassName)

	got, err = n.Normalize("package p;\npublic abstract class Base {}\n")
	require.NoError(t, err)
	assert.Equal(t, "Base", got.ClassName)
}

func TestNormalize_TooLarge(t *testing.T) {
	n := &Normalizer{MaxBytes: 64, DefaultNamespace: "p"}
	_, err := n.Normalize("package p;\npublic class X {" + strings.Repeat("/* pad */", 20) + "}")
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestNormalize_AutoImports(t *testing.T) {
	n := testNormalizer()
	src := "package p;\npublic class Lister {\n  List<String> xs = new ArrayList<>();\n  Map<String,Integer> m = new HashMap<>();\n}\n"

	got, err := n.Normalize(src)
	require.NoError(t, err)
	assert.Contains(t, got.Source, "import java.util.ArrayList;")
	assert.Contains(t, got.Source, "import java.util.HashMap;")
	assert.Contains(t, got.Source, "import java.util.List;")
	assert.Contains(t, got.Source, "import java.util.Map;")

	// Imports land after the package declaration.
	pkgIdx := strings.Index(got.Source, "package p;")
	impIdx := strings.Index(got.Source, "import ")
	assert.Less(t, pkgIdx, impIdx)
}

func TestNormalize_ExistingImportNotDuplicated(t *testing.T) {
	n := testNormalizer()
	src := "package p;\nimport java.util.List;\npublic class Lister {\n  List<String> xs;\n}\n"

	got, err := n.Normalize(src)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(got.Source, "import java.util.List;"))
}

func TestNormalize_Idempotent(t *testing.T) {
	n := testNormalizer()
	inputs := []string{
		"```java\npublic class Echo { List<String> xs; }\n```",
		"package p;\npublic class Plain {}\n",
		"public class Bare { Map<String,String> m; Optional<String> o; }\n",
	}
	for _, src := range inputs {
		first, err := n.Normalize(src)
		require.NoError(t, err, "input: %s", src)
		second, err := n.Normalize(first.Source)
		require.NoError(t, err)
		assert.Equal(t, first.Source, second.Source, "normalization not idempotent for: %s", src)
		assert.Equal(t, first.Package, second.Package)
		assert.Equal(t, first.ClassName, second.ClassName)
	}
}

func TestExtractPackage(t *testing.T) {
	assert.Equal(t, "a.b.c", ExtractPackage("package a.b.c;\npublic class X {}"))
	assert.Equal(t, "", ExtractPackage("public class X {}"))
	assert.Equal(t, "_p", ExtractPackage("package _p;"))
}

func TestExtractPublicClasses(t *testing.T) {
	src := "public class A {}\npublic final class B {}\npublic abstract class C {}\nclass D {}"
	assert.Equal(t, []string{"A", "B", "C"}, ExtractPublicClasses(src))
	assert.Empty(t, ExtractPublicClasses("class Hidden {}"))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, "code\n", StripCodeFence("```java\ncode\n```"))
	assert.Equal(t, "code\n", StripCodeFence("```\ncode\n```"))
	plain := "no fence here"
	assert.Equal(t, plain, StripCodeFence(plain))
	// A fence in the middle is not a wrapper.
	mixed := "prefix\n```\ncode\n```"
	assert.Equal(t, mixed, StripCodeFence(mixed))
}

func TestSplitCodeFence(t *testing.T) {
	code, prose := SplitCodeFence("```java\ncode\n```")
	assert.Equal(t, "code\n", code)
	assert.Empty(t, prose)

	code, prose = SplitCodeFence("Fetches the invoice first.\n```java\ncode\n```")
	assert.Equal(t, "code\n", code)
	assert.Equal(t, "Fetches the invoice first.", prose)

	code, prose = SplitCodeFence("Before.\n```\ncode\n```\nAfter.")
	assert.Equal(t, "code\n", code)
	assert.Equal(t, "Before.\nAfter.", prose)

	code, prose = SplitCodeFence("no fence")
	assert.Equal(t, "no fence", code)
	assert.Empty(t, prose)
}
