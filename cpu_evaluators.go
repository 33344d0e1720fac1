package raysdf

import (
	"github.com/chewxy/math32"
	"github.com/epicx/raysdf/gleval"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// minReduce takes element-wise minimum of arguments and stores to first argument.
func minReduce(d1AndDst, d2 []float32) {
	for i := range d1AndDst {
		d1AndDst[i] = math32.Min(d1AndDst[i], d2[i])
	}
}

func (u *sphere) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	r := u.r
	for i, p := range pos {
		dist[i] = ms3.Norm(p) - r
	}
	return nil
}

func (b *box) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	d := b.half
	r := b.round
	for i, p := range pos {
		q := ms3.AddScalar(r, ms3.Sub(ms3.AbsElem(p), d))
		dist[i] = ms3.Norm(ms3.MaxElem(q, ms3.Vec{})) + minf(maxf(q.X, maxf(q.Y, q.Z)), 0.0) - r
	}
	return nil
}

func (c *cylinder) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	r, h := c.r, c.h
	for i, p := range pos {
		dx := hypotf(p.X, p.Z) - r
		dy := absf(p.Y) - h
		dist[i] = minf(maxf(dx, dy), 0) + hypotf(maxf(dx, 0), maxf(dy, 0))
	}
	return nil
}

func (t *torus) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	t1 := t.rGreater
	t2 := t.rLesser
	for i, p := range pos {
		q := ms2.Vec{X: hypotf(p.X, p.Z) - t1, Y: p.Y}
		dist[i] = ms2.Norm(q) - t2
	}
	return nil
}

func (c *capsule) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	a := c.a
	ba := ms3.Sub(c.b, c.a)
	bb := ms3.Dot(ba, ba)
	r := c.r
	for i, p := range pos {
		pa := ms3.Sub(p, a)
		var h float32
		if bb > 0 {
			h = clampf(ms3.Dot(pa, ba)/bb, 0, 1)
		}
		dist[i] = ms3.Norm(ms3.Sub(pa, ms3.Scale(h, ba))) - r
	}
	return nil
}

func (c *cone) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	q := ms2.Vec{X: c.r, Y: -c.h}
	qq := dot2(q)
	k := signf(q.Y)
	for i, p := range pos {
		w := ms2.Vec{X: hypotf(p.X, p.Z), Y: p.Y - c.h}
		a := ms2.Sub(w, ms2.Scale(clampf(ms2.Dot(w, q)/qq, 0, 1), q))
		b := ms2.Sub(w, ms2.Vec{X: q.X * clampf(w.X/q.X, 0, 1), Y: q.Y})
		d := minf(dot2(a), dot2(b))
		s := maxf(k*(w.X*q.Y-w.Y*q.X), k*(w.Y-q.Y))
		dist[i] = math32.Sqrt(d) * signf(s)
	}
	return nil
}

func (pl *plane) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	n, off := pl.n, pl.off
	for i, p := range pos {
		dist[i] = ms3.Dot(p, n) + off
	}
	return nil
}

func (e *ellipsoid) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	r := e.r
	minr := minf(r.X, minf(r.Y, r.Z))
	for i, p := range pos {
		dist[i] = (ms3.Norm(ms3.DivElem(p, r)) - 1) * minr
	}
	return nil
}

func (py *pyramid) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	s := 2 * py.halfBase
	h := py.h / s
	m2 := h*h + 0.25
	for i, p := range pos {
		p = ms3.Scale(1/s, p)
		px, pz := absf(p.X), absf(p.Z)
		if pz > px {
			px, pz = pz, px
		}
		px -= 0.5
		pz -= 0.5
		if p.Y < 0 {
			// Below the base the closest point lies on the base square.
			dist[i] = s * ms3.Norm(ms3.Vec{X: maxf(px, 0), Y: p.Y, Z: maxf(pz, 0)})
			continue
		}
		qx := pz
		qy := h*p.Y - 0.5*px
		qz := h*px + 0.5*p.Y
		ss := maxf(-qx, 0)
		t := clampf((qy-0.5*pz)/(m2+0.25), 0, 1)
		a := m2*(qx+ss)*(qx+ss) + qy*qy
		b := m2*(qx+0.5*t)*(qx+0.5*t) + (qy-m2*t)*(qy-m2*t)
		var d2 float32
		if minf(qy, -qx*m2-qy*0.5) <= 0 {
			d2 = minf(a, b)
		}
		dist[i] = s * math32.Sqrt((d2+qz*qz)/m2) * signf(maxf(qz, -p.Y))
	}
	return nil
}

func (bz *bezierQuadratic) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	r := bz.r
	if dev, ok := bz.straight(); ok {
		seg := capsule{a: bz.p0, b: bz.p2, r: r + dev}
		return seg.Evaluate(pos, dist, userData)
	}
	A := bz.p0
	a := ms3.Sub(bz.p1, bz.p0)
	b := ms3.Add(ms3.Sub(bz.p0, ms3.Scale(2, bz.p1)), bz.p2)
	c := ms3.Scale(2, a)
	kk := 1 / ms3.Dot(b, b)
	kx := kk * ms3.Dot(a, b)
	aa := ms3.Dot(a, a)
	// at returns the squared distance from the curve point at t to p, with d = A-p.
	at := func(d ms3.Vec, t float32) float32 {
		w := ms3.Add(d, ms3.Scale(t, ms3.Add(c, ms3.Scale(t, b))))
		return ms3.Dot(w, w)
	}
	for i, p := range pos {
		d := ms3.Sub(A, p)
		ky := kk * (2*aa + ms3.Dot(d, b)) / 3
		kz := kk * ms3.Dot(d, a)
		pp := ky - kx*kx
		q := kx*(2*kx*kx-3*ky) + kz
		h := q*q + 4*pp*pp*pp
		var res float32
		if h >= 0 {
			h = math32.Sqrt(h)
			u := math32.Cbrt((h - q) / 2)
			v := math32.Cbrt((-h - q) / 2)
			res = at(d, clampf(u+v-kx, 0, 1))
		} else {
			// Three real roots, the middle one is never the closest.
			z := math32.Sqrt(-pp)
			ang := math32.Acos(clampf(q/(pp*z*2), -1, 1)) / 3
			m := math32.Cos(ang)
			n := math32.Sin(ang) * math32.Sqrt(3)
			t0 := clampf((m+m)*z-kx, 0, 1)
			t1 := clampf((-n-m)*z-kx, 0, 1)
			res = minf(at(d, t0), at(d, t1))
		}
		dist[i] = math32.Sqrt(res) - r
	}
	return nil
}

func (bz *bezierCubic) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	c0, c1, c2, c3 := bz.coefs()
	curve := func(t float32) ms3.Vec {
		return ms3.Add(c0, ms3.Scale(t, ms3.Add(c1, ms3.Scale(t, ms3.Add(c2, ms3.Scale(t, c3))))))
	}
	r := bz.r
	for i, p := range pos {
		var bt float32
		bd := float32(largenum)
		for j := 0; j < bezierSamples; j++ {
			t := float32(j) / (bezierSamples - 1)
			w := ms3.Sub(curve(t), p)
			if dd := ms3.Dot(w, w); dd < bd {
				bd, bt = dd, t
			}
		}
		for j := 0; j < bezierNewton; j++ {
			w := ms3.Sub(curve(bt), p)
			d1 := ms3.Add(c1, ms3.Scale(bt, ms3.Add(ms3.Scale(2, c2), ms3.Scale(3*bt, c3))))
			d2 := ms3.Add(ms3.Scale(2, c2), ms3.Scale(6*bt, c3))
			fp := ms3.Dot(d1, d1) + ms3.Dot(w, d2)
			if fp > 0 {
				bt = clampf(bt-ms3.Dot(w, d1)/fp, 0, 1)
			}
		}
		dist[i] = ms3.Norm(ms3.Sub(curve(bt), p)) - r
	}
	return nil
}

func evaluateSDF3(obj bounder3, pos []ms3.Vec, dist []float32, userData any) error {
	sdf, err := gleval.AssertSDF3(obj)
	if err != nil {
		return err
	}
	return sdf.Evaluate(pos, dist, userData)
}

func evaluateSDF2(obj bounder2, pos []ms2.Vec, dist []float32, userData any) error {
	sdf, err := gleval.AssertSDF2(obj)
	if err != nil {
		return err
	}
	return sdf.Evaluate(pos, dist, userData)
}

// evaluateBinary evaluates s1 into dist and s2 into an auxiliary buffer and reduces both with op.
func evaluateBinary(s1, s2 bounder3, pos []ms3.Vec, dist []float32, userData any, op func(a, b float32) float32) error {
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	d2 := vp.Float.Acquire(len(dist))
	defer vp.Float.Release(d2)
	err = evaluateSDF3(s1, pos, dist, userData)
	if err != nil {
		return err
	}
	err = evaluateSDF3(s2, pos, d2, userData)
	if err != nil {
		return err
	}
	for i := range dist {
		dist[i] = op(dist[i], d2[i])
	}
	return nil
}

// Evaluate implements [gleval.SDF3].
func (u *OpUnion) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	u.mustValidate()
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	auxDist := vp.Float.Acquire(len(dist))
	defer vp.Float.Release(auxDist)
	err = evaluateSDF3(u.joined[0], pos, dist, userData)
	if err != nil {
		return err
	}
	for _, shape := range u.joined[1:] {
		err = evaluateSDF3(shape, pos, auxDist, userData)
		if err != nil {
			return err
		}
		minReduce(dist, auxDist)
	}
	return nil
}

func (u *intersect) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	return evaluateBinary(u.s1, u.s2, pos, dist, userData, Intersect)
}

func (u *diff) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	return evaluateBinary(u.s1, u.s2, pos, dist, userData, Subtract)
}

func (u *xor) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	return evaluateBinary(u.s1, u.s2, pos, dist, userData, func(a, b float32) float32 {
		return maxf(minf(a, b), -maxf(a, b))
	})
}

func (u *smoothUnion) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	k := u.k
	return evaluateBinary(u.s1, u.s2, pos, dist, userData, func(a, b float32) float32 {
		return SmoothMin(a, b, k)
	})
}

func (u *smoothDiff) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	k := u.k
	return evaluateBinary(u.s1, u.s2, pos, dist, userData, func(a, b float32) float32 {
		return SmoothSubtract(a, b, k)
	})
}

func (u *smoothIntersect) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	k := u.k
	return evaluateBinary(u.s1, u.s2, pos, dist, userData, func(a, b float32) float32 {
		return SmoothMax(a, b, k)
	})
}

// evaluateWarped maps every position with warp and evaluates child at the mapped positions.
func evaluateWarped(child bounder3, pos []ms3.Vec, dist []float32, userData any, warp func(p ms3.Vec) ms3.Vec) error {
	sdf, err := gleval.AssertSDF3(child)
	if err != nil {
		return err
	}
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	transformed := vp.V3.Acquire(len(pos))
	defer vp.V3.Release(transformed)
	for i, p := range pos {
		transformed[i] = warp(p)
	}
	return sdf.Evaluate(transformed, dist, userData)
}

func (t *translate) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	T := t.p
	return evaluateWarped(t.s, pos, dist, userData, func(p ms3.Vec) ms3.Vec {
		return ms3.Sub(p, T)
	})
}

func (s *scale) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	factor := s.scale
	factorInv := 1. / s.scale
	err := evaluateWarped(s.s, pos, dist, userData, func(p ms3.Vec) ms3.Vec {
		return ms3.Scale(factorInv, p)
	})
	if err != nil {
		return err
	}
	for i := range dist {
		dist[i] *= factor
	}
	return nil
}

func (r *rotate) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	return evaluateWarped(r.s, pos, dist, userData, r.inv)
}

func (s *symmetry) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	xb, yb, zb := s.xyz.X(), s.xyz.Y(), s.xyz.Z()
	return evaluateWarped(s.s, pos, dist, userData, func(p ms3.Vec) ms3.Vec {
		if xb {
			p.X = absf(p.X)
		}
		if yb {
			p.Y = absf(p.Y)
		}
		if zb {
			p.Z = absf(p.Z)
		}
		return p
	})
}

func (r *repeat) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	return evaluateWarped(r.s, pos, dist, userData, r.cell)
}

func (t *twist) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	k := t.k
	err := evaluateWarped(t.s, pos, dist, userData, func(p ms3.Vec) ms3.Vec {
		s, c := math32.Sincos(k * p.Y)
		return ms3.Vec{X: c*p.X - s*p.Z, Y: p.Y, Z: s*p.X + c*p.Z}
	})
	if err != nil {
		return err
	}
	// Outside the bounding cylinder the warp stretches more than lipschitz reports.
	r0, l0 := t.radius(), t.lipschitz()
	for i, p := range pos {
		if r := hypotf(p.X, p.Z); r > r0 && dist[i] > 0 {
			dist[i] *= l0 / shearStretch(absf(k)*r)
		}
	}
	return nil
}

func (bn *bend) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	k := bn.k
	err := evaluateWarped(bn.s, pos, dist, userData, func(p ms3.Vec) ms3.Vec {
		s, c := math32.Sincos(k * p.X)
		return ms3.Vec{X: c*p.X - s*p.Y, Y: s*p.X + c*p.Y, Z: p.Z}
	})
	if err != nil {
		return err
	}
	r0, l0 := bn.radius(), bn.lipschitz()
	for i, p := range pos {
		if r := hypotf(p.X, p.Y); r > r0 && dist[i] > 0 {
			dist[i] *= l0 / (1 + absf(k)*r)
		}
	}
	return nil
}

func (e *elongate) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	aux := vp.Float.Acquire(len(pos))
	defer vp.Float.Release(aux)
	h := e.h
	for i, p := range pos {
		q := ms3.Sub(ms3.AbsElem(p), h)
		aux[i] = math32.Min(q.Max(), 0)
	}
	err = evaluateWarped(e.s, pos, dist, userData, func(p ms3.Vec) ms3.Vec {
		return ms3.MaxElem(ms3.Sub(ms3.AbsElem(p), h), ms3.Vec{})
	})
	if err != nil {
		return err
	}
	for i, qmax := range aux {
		dist[i] += qmax
	}
	return nil
}

func (sh *shell) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	err := evaluateSDF3(sh.s, pos, dist, userData)
	if err != nil {
		return err
	}
	thickness := sh.thick
	for i, d := range dist {
		dist[i] = absf(d) - thickness
	}
	return nil
}

func (r *offset) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	err := evaluateSDF3(r.s, pos, dist, userData)
	if err != nil {
		return err
	}
	off := r.off
	for i, d := range dist {
		dist[i] = d + off
	}
	return nil
}

func (c *circle2D) Evaluate(pos []ms2.Vec, dist []float32, userData any) error {
	r := c.r
	for i, p := range pos {
		dist[i] = ms2.Norm(p) - r
	}
	return nil
}

func (r *rect2D) Evaluate(pos []ms2.Vec, dist []float32, userData any) error {
	b := r.half
	round := r.round
	for i, p := range pos {
		q := ms2.AddScalar(round, ms2.Sub(ms2.AbsElem(p), b))
		dist[i] = ms2.Norm(ms2.MaxElem(q, ms2.Vec{})) + minf(maxf(q.X, q.Y), 0) - round
	}
	return nil
}

func (l *line2D) Evaluate(pos []ms2.Vec, dist []float32, userData any) error {
	a := l.a
	ba := ms2.Sub(l.b, l.a)
	dotba := ms2.Dot(ba, ba)
	w := l.width / 2
	for i, p := range pos {
		pa := ms2.Sub(p, a)
		h := clampf(ms2.Dot(pa, ba)/dotba, 0, 1)
		dist[i] = ms2.Norm(ms2.Sub(pa, ms2.Scale(h, ba))) - w
	}
	return nil
}

// Evaluate implements [gleval.SDF2].
func (u *OpUnion2D) Evaluate(pos []ms2.Vec, dist []float32, userData any) error {
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	err = evaluateSDF2(u.joined[0], pos, dist, userData)
	if err != nil {
		return err
	}
	auxDist := vp.Float.Acquire(len(dist))
	defer vp.Float.Release(auxDist)
	for i := range u.joined[1:] {
		err = evaluateSDF2(u.joined[i+1], pos, auxDist, userData)
		if err != nil {
			return err
		}
		minReduce(dist, auxDist)
	}
	return nil
}

func (t *translate2D) Evaluate(pos []ms2.Vec, dist []float32, userData any) error {
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	transPos := vp.V2.Acquire(len(pos))
	defer vp.V2.Release(transPos)
	T := t.p
	for i, p := range pos {
		transPos[i] = ms2.Sub(p, T)
	}
	return evaluateSDF2(t.s, transPos, dist, userData)
}

func (a *annulus2D) Evaluate(pos []ms2.Vec, dist []float32, userData any) error {
	err := evaluateSDF2(a.s, pos, dist, userData)
	if err != nil {
		return err
	}
	r := a.r
	for i, d := range dist {
		dist[i] = absf(d) - r
	}
	return nil
}

func (e *extrusion) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	pos2 := vp.V2.Acquire(len(pos))
	defer vp.V2.Release(pos2)
	for i, p := range pos {
		pos2[i] = ms2.Vec{X: p.X, Y: p.Y}
	}
	err = evaluateSDF2(e.s, pos2, dist, userData)
	if err != nil {
		return err
	}
	h := e.h / 2
	for i, p := range pos {
		d := dist[i]
		wy := absf(p.Z) - h
		dist[i] = minf(0, maxf(d, wy)) + hypotf(maxf(d, 0), maxf(wy, 0))
	}
	return nil
}

func (r *revolution) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	vp, err := gleval.GetVecPool(userData)
	if err != nil {
		return err
	}
	pos2 := vp.V2.Acquire(len(pos))
	defer vp.V2.Release(pos2)
	o := r.off
	for i, p := range pos {
		pos2[i] = ms2.Vec{X: hypotf(p.X, p.Z) - o, Y: p.Y}
	}
	return evaluateSDF2(r.s2d, pos2, dist, userData)
}
