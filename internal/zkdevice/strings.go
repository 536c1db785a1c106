// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package zkdevice

import "strings"

func trimTrailingNuls(b []byte) string {
	return strings.TrimRight(string(b), "\x00")
}

func splitAny(s, cutset string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(cutset, r)
	})
}

func cutEquals(field string) (key, value string, ok bool) {
	i := strings.IndexByte(field, '=')
	if i < 0 {
		return "", "", false
	}
	return field[:i], field[i+1:], true
}
