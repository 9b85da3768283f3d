package geo

// PointInPolygon applies the even-odd (ray casting) rule with latitude as the
// x axis and longitude as the y axis. The ring is implicitly closed, so the
// first vertex must not be repeated at the end. Points on an edge or vertex
// get whatever the crossing test yields; the answer is deterministic for a
// fixed input but not guaranteed to be "inside".
func PointInPolygon(p GeoPoint, vertices []GeoPoint) bool {
	x, y := p.Latitude, p.Longitude
	inside := false

	for i, j := 0, len(vertices)-1; i < len(vertices); j, i = i, i+1 {
		xi, yi := vertices[i].Latitude, vertices[i].Longitude
		xj, yj := vertices[j].Latitude, vertices[j].Longitude

		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}

	return inside
}
