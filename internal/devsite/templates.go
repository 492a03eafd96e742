package devsite

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} - {{.SiteTitle}}</title>
</head>
<body>
<header>
<a class="site-title" href="{{(index .Breadcrumb 0).Link}}">{{.SiteTitle}}</a>
<nav id="header-nav">{{.Menu}}</nav>
</header>
<div class="layout">
<aside id="sidebar">
<div id="sidebar-nav-tree" class="invisible">{{.Tree}}</div>
</aside>
<main id="body-main">
<div id="breadcrumb">{{range $i, $c := .Breadcrumb}}{{if $i}} / {{end}}{{if $c.Link}}<a href="{{$c.Link}}">{{$c.Title}}</a>{{else}}<span>{{$c.Title}}</span>{{end}}{{end}}</div>
<div id="article-title">{{.Title}}</div>
<article>
<h1 data-article-title>{{.Title}}</h1>
<div id="article-main">{{.Content}}</div>
</article>
<div id="page-indicator">{{.Indicator}}</div>
</main>
<aside id="toc"></aside>
</div>
</body>
</html>
`
