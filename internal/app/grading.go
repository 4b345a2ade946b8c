package app

import "live-arena-service/internal/domain"

// GradeRatio scores one submitted answer against a question's key and
// returns a correctness ratio in [0,1]. It is pure: no clock, no state.
func GradeRatio(q domain.Question, a domain.SubmittedAnswer) float64 {
	qtype := q.Type
	if qtype == "" {
		qtype = domain.QuestionSingle
	}
	switch qtype {
	case domain.QuestionSingle:
		if a.Value == q.Correct {
			return 1.0
		}
		return 0.0
	case domain.QuestionMultiple:
		return gradeMultiple(q.CorrectSet, a.Values)
	case domain.QuestionOrder:
		return gradeOrder(q.Order, a.Values)
	case domain.QuestionMatch:
		return gradeMatch(q.Pairs, a.Pairs)
	}
	return 0.0
}

// gradeMultiple is all-or-nothing set equality; no partial credit.
func gradeMultiple(key, submitted []string) float64 {
	if len(key) == 0 {
		return 0.0
	}
	want := make(map[string]struct{}, len(key))
	for _, v := range key {
		want[v] = struct{}{}
	}
	got := make(map[string]struct{}, len(submitted))
	for _, v := range submitted {
		got[v] = struct{}{}
	}
	if len(want) != len(got) {
		return 0.0
	}
	for v := range want {
		if _, ok := got[v]; !ok {
			return 0.0
		}
	}
	return 1.0
}

// gradeOrder counts matching positions up to the first mismatch (a prefix
// match) over the key length; a correct element after a mismatch earns
// nothing.
func gradeOrder(key, submitted []string) float64 {
	if len(key) == 0 || len(submitted) == 0 {
		return 0.0
	}
	limit := len(key)
	if len(submitted) < limit {
		limit = len(submitted)
	}
	matched := 0
	for i := 0; i < limit; i++ {
		if submitted[i] != key[i] {
			break
		}
		matched++
	}
	return float64(matched) / float64(len(key))
}

// gradeMatch counts correctly paired keys over the union of keys referenced
// by either side; unpaired or mismatched keys score zero rather than erring.
func gradeMatch(key, submitted map[string]string) float64 {
	keys := make(map[string]struct{}, len(key)+len(submitted))
	for k := range key {
		keys[k] = struct{}{}
	}
	for k := range submitted {
		keys[k] = struct{}{}
	}
	if len(keys) == 0 {
		return 0.0
	}
	correct := 0
	for k := range keys {
		want, inKey := key[k]
		got, inSub := submitted[k]
		if inKey && inSub && want == got {
			correct++
		}
	}
	return float64(correct) / float64(len(keys))
}
