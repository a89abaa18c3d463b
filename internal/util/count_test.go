package util

import "testing"

func TestParseCount(t *testing.T) {
	cases := []struct {
		name  string
		input *string
		want  int
	}{
		{name: "absent", input: nil, want: 0},
		{name: "plain", input: StringPtr("12"), want: 12},
		{name: "padded", input: StringPtr("  7 "), want: 7},
		{name: "thousand comma", input: StringPtr("1,200"), want: 1200},
		{name: "dot is decimal", input: StringPtr("1.200"), want: 0},
		{name: "whole float", input: StringPtr("3.0"), want: 3},
		{name: "fraction", input: StringPtr("2.5"), want: 0},
		{name: "negative", input: StringPtr("-4"), want: 0},
		{name: "garbage", input: StringPtr("n/a"), want: 0},
		{name: "blank", input: StringPtr(""), want: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseCount(tc.input); got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}
