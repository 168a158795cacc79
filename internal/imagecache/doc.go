// Package imagecache discovers, downloads and caches one representative
// product image per article.
//
// The pipeline is best-effort and runs inline with the request that needs the
// image: the supplier page named by an article's order link is fetched, the
// best image reference is picked from its HTML, the image is validated while
// it streams into a blob store as {id}.{ext}, and the file name is recorded on
// the article. Any failure leaves the article without an image; the caller
// falls back to the identifier image and the next request tries again.
package imagecache
