package qtree

// LinearSearch is the brute force equivalent of FindNearby over an object
// table. Inactive objects are skipped.
func LinearSearch(objects []Object, opt SearchOptions) []int32 {
	if opt.MaxResults <= 0 {
		return nil
	}

	var ids []int32
	for i := range objects {
		o := &objects[i]
		if !o.Active || !opt.match(newItem(o)) {
			continue
		}

		ids = append(ids, o.ID)
		if len(ids) == int(opt.MaxResults) {
			break
		}
	}
	return ids
}

// LinearCollide is the brute force equivalent of CollideAll over an object
// table. It returns the number of pairs the collider accepted.
func LinearCollide(objects []Object, c Collider) int {
	accepted := 0
	for i := range objects {
		if !objects[i].Active {
			continue
		}
		a := newItem(&objects[i])

		for j := i + 1; j < len(objects); j++ {
			if !objects[j].Active {
				continue
			}

			if b := newItem(&objects[j]); a.overlaps(b) && c.Collide(a.ID, b.ID) {
				accepted++
			}
		}
	}
	return accepted
}
