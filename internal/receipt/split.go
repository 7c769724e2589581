package receipt

// Split expands a raw unit into one unit per receipt. Record lists yield one
// Record unit per element in emitted order; text is never subdivided.
func Split(unit RawUnit) []RawUnit {
	switch unit.Kind {
	case UnitRecord:
		return []RawUnit{unit}
	case UnitRecordList:
		units := make([]RawUnit, 0, len(unit.Records))
		for _, m := range unit.Records {
			units = append(units, RecordUnit(m))
		}
		return units
	case UnitText, UnitUnparsed:
		return []RawUnit{unit}
	}
	return nil
}
