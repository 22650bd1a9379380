package halo

import "math"

// sici returns the sine and cosine integrals Si(x) and Ci(x) for x > 0,
// from the power series below x = 2 and the continued fraction of the
// complex exponential integral above.
func sici(x float64) (si, ci float64) {
	const (
		eps   = 1e-15
		euler = 0.57721566490153286061
		tmin  = 2.0
		maxIt = 200
		fpmin = 1e-300
	)
	t := math.Abs(x)
	if t == 0 {
		return 0, math.Inf(-1)
	}
	if t > tmin {
		b := complex(1, t)
		c := complex(1/fpmin, 0)
		d := 1 / b
		h := d
		for i := 2; i <= maxIt; i++ {
			a := complex(-float64((i-1)*(i-1)), 0)
			b += 2
			d = 1 / (a*d + b)
			c = b + a/c
			del := c * d
			h *= del
			if math.Abs(real(del)-1)+math.Abs(imag(del)) < eps {
				break
			}
		}
		h *= complex(math.Cos(t), -math.Sin(t))
		ci = -real(h)
		si = math.Pi/2 + imag(h)
	} else {
		var sum, sums, sumc float64
		sign, fact := 1.0, 1.0
		odd := true
		for k := 1; k <= maxIt; k++ {
			fact *= t / float64(k)
			term := fact / float64(k)
			sum += sign * term
			rel := term / math.Abs(sum)
			if odd {
				sign = -sign
				sums = sum
				sum = sumc
			} else {
				sumc = sum
				sum = sums
			}
			if rel < eps {
				break
			}
			odd = !odd
		}
		si = sums
		ci = sumc + math.Log(t) + euler
	}
	if x < 0 {
		si = -si
	}
	return si, ci
}
