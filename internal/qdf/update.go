package qdf

// Update merges add into df. Tickers present in add replace the matching
// tickers of df; with replaceXcats whole categories are replaced instead.
func Update(df, add Frame, replaceXcats bool) Frame {
	if len(df) == 0 {
		out := add.Clone()
		out.Sort()
		return out
	}
	drop := make(map[string]bool)
	for _, o := range add {
		if replaceXcats {
			drop[o.Xcat] = true
		} else {
			drop[o.Ticker()] = true
		}
	}
	out := make(Frame, 0, len(df)+len(add))
	for _, o := range df {
		k := o.Ticker()
		if replaceXcats {
			k = o.Xcat
		}
		if !drop[k] {
			out = append(out, o)
		}
	}
	out = append(out, add...)
	out.Sort()
	return out
}
