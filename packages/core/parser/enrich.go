package parser

// EnrichWith fills d's zero-value fields from base. Non-zero child fields
// are never touched: header maps are unioned with child keys winning, and
// base footer conditions are appended only when the child has no condition
// with the same key. The base's own extends reference is deliberately not
// copied; walking the chain is the loader's job.
func (d *Document) EnrichWith(base *Document) {
	d.enrichHeader(&base.Header)
	d.enrichContent(&base.Content)
	d.enrichFooter(&base.Footer)
}

func (d *Document) enrichHeader(base *Header) {
	h := &d.Header
	if h.Project == "" {
		h.Project = base.Project
	}
	if !h.IsHTTP {
		h.IsHTTP = base.IsHTTP
	}
	if h.DependsOn == "" {
		h.DependsOn = base.DependsOn
	}
	if h.NumberOfRetries == 0 {
		h.NumberOfRetries = base.NumberOfRetries
	}
	if h.Timeout == 0 {
		h.Timeout = base.Timeout
	}
	if !h.AllowDependencyFailure {
		h.AllowDependencyFailure = base.AllowDependencyFailure
	}
	if h.ShowWarnings == nil {
		h.ShowWarnings = base.ShowWarnings
	}
}

func (d *Document) enrichContent(base *Content) {
	c := &d.Content
	if c.Method == "" {
		c.Method = base.Method
	}
	if c.URI == "" {
		c.URI = base.URI
	}
	if c.HTTPVersion == "" {
		c.HTTPVersion = base.HTTPVersion
	}
	if c.Hostname == "" {
		c.Hostname = base.Hostname
		if c.CustomPort == 0 {
			c.CustomPort = base.CustomPort
		}
	}
	if len(base.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(base.Headers))
		}
		for k, v := range base.Headers {
			if c.Header(k) == "" {
				c.Headers[k] = v
			}
		}
	}
	if c.Body == "" {
		c.Body = base.Body
	}
}

func (d *Document) enrichFooter(base *Footer) {
	have := make(map[string]bool, len(d.Footer.Conditions))
	for _, c := range d.Footer.Conditions {
		have[c.Key] = true
	}
	for _, c := range base.Conditions {
		if c.IsComment || have[c.Key] {
			continue
		}
		d.Footer.Conditions = append(d.Footer.Conditions, c)
	}
}
