package a

func DoThingA(x int) int { // want "function \"DoThingA\" duplicates function also found at .*DoThingB.*"
	y := x + 1
	z := y * 2
	w := z - 1
	return w + 1
}

func DoThingB(a int) int {
	b := a + 1
	c := b * 2
	d := c - 1
	return d + 1
}
